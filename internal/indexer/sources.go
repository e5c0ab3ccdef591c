package indexer

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/blockrank/blockrank/internal/logger"
	"github.com/blockrank/blockrank/internal/metrics"
	"github.com/blockrank/blockrank/internal/store"
)

// SourceRegistry tracks the contract addresses whose logs the pipeline
// consumes: the static registry contract plus every block contract discovered
// through creation events. Registration is idempotent since event replay can
// re-trigger a creation.
type SourceRegistry struct {
	mu       sync.RWMutex
	registry common.Address
	dynamic  map[common.Address]struct{}
	log      *logger.Logger
}

// NewSourceRegistry creates a registry watching only the static registry
// contract. Dynamic sources are added via Register or rebuilt with Load.
func NewSourceRegistry(registry common.Address, log *logger.Logger) *SourceRegistry {
	return &SourceRegistry{
		registry: registry,
		dynamic:  make(map[common.Address]struct{}),
		log:      log,
	}
}

// Load rebuilds the dynamic source set from the blocks already in the store,
// so a restarted indexer keeps watching every known block contract.
func (r *SourceRegistry) Load(ctx context.Context, s *store.Store) error {
	ids, err := s.BlockIDs(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	for _, id := range ids {
		r.dynamic[common.HexToAddress(id)] = struct{}{}
	}
	count := len(r.dynamic)
	r.mu.Unlock()

	metrics.WatchedSourcesSet(count + 1)
	r.log.Infof("Watching %d block contracts restored from store", count)

	return nil
}

// Register begins routing logs from the given contract address. Returns true
// when the address is new; a duplicate registration is a no-op.
func (r *SourceRegistry) Register(addr common.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.dynamic[addr]; ok {
		return false
	}

	r.dynamic[addr] = struct{}{}
	metrics.WatchedSourcesSet(len(r.dynamic) + 1)
	r.log.Debugf("Registered dynamic source %s", addr.Hex())

	return true
}

// IsWatched reports whether logs from the address should be processed.
func (r *SourceRegistry) IsWatched(addr common.Address) bool {
	if addr == r.registry {
		return true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.dynamic[addr]

	return ok
}

// IsRegistry reports whether the address is the static registry contract.
func (r *SourceRegistry) IsRegistry(addr common.Address) bool {
	return addr == r.registry
}

// Watched returns the full address set to filter logs by, registry first.
func (r *SourceRegistry) Watched() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()

	addrs := make([]common.Address, 0, len(r.dynamic)+1)
	addrs = append(addrs, r.registry)
	for addr := range r.dynamic {
		addrs = append(addrs, addr)
	}

	return addrs
}

// Count returns the number of watched addresses including the registry.
func (r *SourceRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.dynamic) + 1
}
