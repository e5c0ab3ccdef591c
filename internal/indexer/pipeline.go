package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/blockrank/blockrank/internal/chain"
	"github.com/blockrank/blockrank/internal/config"
	"github.com/blockrank/blockrank/internal/logger"
	"github.com/blockrank/blockrank/internal/metrics"
	"github.com/blockrank/blockrank/internal/rpc"
	"github.com/blockrank/blockrank/internal/store"
)

// timestampCacheLimit bounds the header timestamp cache. Entries are reused
// heavily within a chunk and rarely after it, so the cache is simply dropped
// when it grows past the limit.
const timestampCacheLimit = 4096

// Pipeline drives the indexing loop: fetch logs for all watched sources in
// chunks, order them by chain position, normalize, and fold each event into
// the store. One bad log never blocks the stream behind it.
type Pipeline struct {
	client       rpc.EthClient
	store        *store.Store
	sources      *SourceRegistry
	normalizer   *chain.Normalizer
	materializer *Materializer
	cfg          *config.ChainConfig
	log          *logger.Logger

	timestamps map[uint64]uint64
}

// NewPipeline assembles the indexing loop from its parts.
func NewPipeline(client rpc.EthClient, s *store.Store, sources *SourceRegistry,
	materializer *Materializer, cfg *config.ChainConfig, log *logger.Logger) *Pipeline {
	return &Pipeline{
		client:       client,
		store:        s,
		sources:      sources,
		normalizer:   chain.NewNormalizer(),
		materializer: materializer,
		cfg:          cfg,
		log:          log,
		timestamps:   make(map[uint64]uint64),
	}
}

// Run polls the chain until the context is cancelled. Sync errors are logged
// and retried on the next tick.
func (p *Pipeline) Run(ctx context.Context) error {
	p.log.Infof("Starting indexing pipeline from block %d, poll interval %s",
		p.cfg.StartBlock, p.cfg.PollInterval.Duration)

	ticker := time.NewTicker(p.cfg.PollInterval.Duration)
	defer ticker.Stop()

	for {
		if err := p.Sync(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			p.log.Errorf("Sync failed, retrying next tick: %v", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sync catches the store up to the current chain head, one chunk at a time.
// Each fully processed chunk is checkpointed, so a crash resumes at the last
// finished chunk and replays at most one chunk of already-applied events.
func (p *Pipeline) Sync(ctx context.Context) error {
	head, err := p.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain head: %w", err)
	}

	from, err := p.nextBlock(ctx)
	if err != nil {
		return err
	}
	if from > head {
		return nil
	}

	for from <= head {
		to := from + p.cfg.ChunkSize - 1
		if to > head {
			to = head
		}

		if err := p.processRange(ctx, from, to); err != nil {
			return err
		}

		if err := p.checkpoint(ctx, to); err != nil {
			return err
		}

		from = to + 1
	}

	return nil
}

// nextBlock returns the first block that still needs indexing.
func (p *Pipeline) nextBlock(ctx context.Context) (uint64, error) {
	state, err := p.store.GetSyncState(ctx)
	if err != nil {
		return 0, err
	}
	if state == nil {
		return p.cfg.StartBlock, nil
	}

	return state.LastIndexedBlock + 1, nil
}

// processRange indexes [from, to]. A block-creation event inside the range
// registers a new source whose own logs may also sit inside the range but
// were not in the filter's address set, so the range is re-fetched until the
// source set stops growing. Handlers are replay-safe, which makes the
// re-application of already-seen logs harmless.
func (p *Pipeline) processRange(ctx context.Context, from, to uint64) error {
	for {
		before := p.sources.Count()

		logs, err := p.client.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: p.sources.Watched(),
		})
		if err != nil {
			return fmt.Errorf("failed to fetch logs for range [%d, %d]: %w", from, to, err)
		}

		sort.Slice(logs, func(i, j int) bool {
			if logs[i].BlockNumber != logs[j].BlockNumber {
				return logs[i].BlockNumber < logs[j].BlockNumber
			}
			return logs[i].Index < logs[j].Index
		})

		for i := range logs {
			if err := p.processLog(ctx, &logs[i]); err != nil {
				return err
			}
		}

		if p.sources.Count() == before {
			return nil
		}

		p.log.Debugf("Source set grew while processing [%d, %d], re-fetching range", from, to)
	}
}

// processLog normalizes and applies one log. Unrecognized or malformed logs
// and handler failures are logged and skipped.
func (p *Pipeline) processLog(ctx context.Context, log *types.Log) error {
	if log.Removed {
		metrics.EventSkippedInc("removed")
		return nil
	}

	timestamp, err := p.timestampOf(ctx, log.BlockNumber)
	if err != nil {
		return err
	}

	event, err := p.normalizer.Normalize(log, timestamp)
	if err != nil {
		if errors.Is(err, chain.ErrUnrecognizedEvent) {
			metrics.EventSkippedInc("unrecognized")
			p.log.Debugf("Skipping unrecognized log: %v", err)
			return nil
		}

		metrics.EventSkippedInc("malformed")
		p.log.Warnf("Skipping malformed log at block %d index %d: %v",
			log.BlockNumber, log.Index, err)
		return nil
	}

	if err := p.materializer.Apply(ctx, event); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		metrics.EventSkippedInc("handler_error")
		p.log.Errorf("Handler failed, skipping event: %v", err)
	}

	return nil
}

// timestampOf returns the timestamp of a chain block, cached per block since
// every log in a block shares it.
func (p *Pipeline) timestampOf(ctx context.Context, blockNumber uint64) (uint64, error) {
	if ts, ok := p.timestamps[blockNumber]; ok {
		return ts, nil
	}

	header, err := p.client.HeaderByNumber(ctx, blockNumber)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch header for block %d: %w", blockNumber, err)
	}

	if len(p.timestamps) >= timestampCacheLimit {
		p.timestamps = make(map[uint64]uint64)
	}
	p.timestamps[blockNumber] = header.Time

	return header.Time, nil
}

// checkpoint records that every block up to and including the given one has
// been folded into the store.
func (p *Pipeline) checkpoint(ctx context.Context, blockNumber uint64) error {
	header, err := p.client.HeaderByNumber(ctx, blockNumber)
	if err != nil {
		return fmt.Errorf("failed to fetch header for checkpoint %d: %w", blockNumber, err)
	}

	if err := p.store.SaveCheckpoint(ctx, blockNumber, header.Hash(), header.Time); err != nil {
		return err
	}
	metrics.LastIndexedBlockSet(blockNumber)

	return nil
}
