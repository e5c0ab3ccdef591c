package client

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"math/big"

	"github.com/blockrank/blockrank/internal/config"
	"github.com/blockrank/blockrank/internal/logger"
	"github.com/blockrank/blockrank/internal/rpc"
)

// Poller watches the chain for new registry logs and triggers a debounced
// refresh when it sees any. The refresh fires after a fixed delay so the
// server-side indexer has time to fold the new events in; detections within
// the delay window collapse into a single refresh.
type Poller struct {
	client   rpc.EthClient
	registry common.Address
	interval time.Duration
	delay    time.Duration
	refresh  func()
	log      *logger.Logger

	mu          sync.Mutex
	lastChecked uint64
	pending     bool
	paused      bool
	debounce    *time.Timer
}

// NewPoller creates a poller that calls refresh after new registry activity.
func NewPoller(client rpc.EthClient, registry common.Address, cfg *config.ClientConfig,
	refresh func(), log *logger.Logger) *Poller {
	return &Poller{
		client:   client,
		registry: registry,
		interval: cfg.PollInterval.Duration,
		delay:    cfg.RefreshDelay.Duration,
		refresh:  refresh,
		log:      log,
	}
}

// Run ticks until the context is cancelled. Errors never stop the loop.
// A pending debounced refresh is torn down on shutdown so it cannot fire
// after Run returns.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.stopDebounce()
			return nil
		case <-ticker.C:
			p.mu.Lock()
			paused := p.paused
			p.mu.Unlock()
			if paused {
				continue
			}

			p.Tick(ctx)
		}
	}
}

// Tick performs one poll. The first tick only records the baseline height so
// startup never triggers a spurious refresh. Known-benign RPC errors are
// swallowed; anything else is logged and retried on the next tick.
func (p *Poller) Tick(ctx context.Context) {
	head, err := p.client.BlockNumber(ctx)
	if err != nil {
		p.logPollError("failed to get chain height", err)
		return
	}

	p.mu.Lock()
	last := p.lastChecked
	if last == 0 {
		p.lastChecked = head
		p.mu.Unlock()
		p.log.Debugf("Poller baseline set at block %d", head)
		return
	}
	p.mu.Unlock()

	if head <= last {
		return
	}

	logs, err := p.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(last + 1),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{p.registry},
	})
	if err != nil {
		p.logPollError("failed to fetch registry logs", err)
		return
	}

	p.mu.Lock()
	p.lastChecked = head
	p.mu.Unlock()

	if len(logs) > 0 {
		p.log.Debugf("Detected %d registry logs in [%d, %d], scheduling refresh", len(logs), last+1, head)
		p.scheduleRefresh()
	}
}

// Pause stops acting on ticks, e.g. while the consumer is hidden.
func (p *Poller) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

// Resume re-enables polling and runs an immediate tick to catch up.
func (p *Poller) Resume(ctx context.Context) {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()

	p.Tick(ctx)
}

// scheduleRefresh arms the debounce timer. Calls while a refresh is already
// pending collapse into it.
func (p *Poller) scheduleRefresh() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pending {
		return
	}
	p.pending = true

	p.debounce = time.AfterFunc(p.delay, func() {
		p.mu.Lock()
		p.pending = false
		p.mu.Unlock()

		p.refresh()
	})
}

// stopDebounce cancels a pending refresh, if any.
func (p *Poller) stopDebounce() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
		p.pending = false
	}
}

// logPollError distinguishes benign RPC failures from unexpected ones.
// Neither crashes the poller.
func (p *Poller) logPollError(msg string, err error) {
	if rpc.IsBenignFilterError(err) {
		p.log.Debugf("%s (benign): %v", msg, err)
		return
	}

	p.log.Warnf("%s: %v", msg, err)
}
