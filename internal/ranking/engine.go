package ranking

import (
	"context"
	"fmt"

	"github.com/blockrank/blockrank/internal/logger"
	"github.com/blockrank/blockrank/internal/metrics"
	"github.com/blockrank/blockrank/internal/store"
)

// Engine maintains day-bucketed ranking snapshots and serves trend queries
// over them. Snapshot writes are last-write-wins per (block, day): a snapshot
// is the latest-known state of that day, not a history of changes within it.
type Engine struct {
	store *store.Store
	log   *logger.Logger
}

// NewEngine creates a snapshot engine on top of the entity store.
func NewEngine(s *store.Store, log *logger.Logger) *Engine {
	return &Engine{
		store: s,
		log:   log,
	}
}

// RecordSnapshot writes (or overwrites) the block's snapshot for the day of
// the given timestamp and refreshes the stored ranking of that level and day.
func (e *Engine) RecordSnapshot(ctx context.Context, block *store.Block, timestamp uint64) error {
	day := DayOf(timestamp)

	memberCount, err := e.store.MemberCount(ctx, block.ID)
	if err != nil {
		return fmt.Errorf("failed to count members for snapshot of %s: %w", block.ID, err)
	}

	snap := &store.RankingSnapshot{
		ID:           SnapshotKey(block.ID, day),
		Block:        block.ID,
		LevelID:      block.LevelID,
		InvitedCount: block.InvitedCount,
		MemberCount:  memberCount,
		Day:          day,
		Timestamp:    timestamp,
	}

	if err := e.store.PutSnapshot(ctx, snap); err != nil {
		return err
	}
	metrics.SnapshotWrittenInc()

	e.log.Debugf("Recorded snapshot %s: level %d, invited %d, members %d",
		snap.ID, snap.LevelID, snap.InvitedCount, snap.MemberCount)

	return e.RecomputePositions(ctx, block.LevelID, day)
}

// RecomputePositions rebuilds the stored 1-based ranking of one level for one
// day from its snapshots. Ties on invite count break by block id so the
// ranking is deterministic across recomputations.
func (e *Engine) RecomputePositions(ctx context.Context, levelID int, day uint64) error {
	snaps, err := e.store.SnapshotsByLevelDay(ctx, levelID, day)
	if err != nil {
		return err
	}

	positions := make([]*store.DailyRankingPosition, len(snaps))
	for i, snap := range snaps {
		positions[i] = &store.DailyRankingPosition{
			ID:           PositionKey(levelID, day, snap.Block),
			Block:        snap.Block,
			LevelID:      levelID,
			Day:          day,
			Position:     i + 1,
			InvitedCount: snap.InvitedCount,
			Timestamp:    snap.Timestamp,
		}
	}

	return e.store.PutDailyPositions(ctx, positions)
}

// RankedBlock is one row of a trend-annotated ranking.
type RankedBlock struct {
	Block        *store.Block `json:"block"`
	Position     int          `json:"position"`
	InvitedCount uint64       `json:"invitedCount"`
	Trend        Trend        `json:"trend"`
	Diff         int          `json:"diff"`
}

// Rank returns the live ranking of a level, ordered best first, with each
// block's movement relative to yesterday's snapshot positions. The live
// position comes from current block state rather than today's snapshots, so
// the ranking reflects invite counts the snapshot engine has not bucketed yet.
func (e *Engine) Rank(ctx context.Context, levelID int, now uint64) ([]*RankedBlock, error) {
	blocks, err := e.store.QueryBlocks(ctx, store.BlockFilter{LevelID: &levelID},
		"invited_count", true, 0, 0)
	if err != nil {
		return nil, err
	}

	previous, err := e.previousPositions(ctx, levelID, DayOf(now))
	if err != nil {
		return nil, err
	}

	ranked := make([]*RankedBlock, len(blocks))
	for i, block := range blocks {
		position := i + 1
		prev, ok := previous[block.ID]
		movement := Compare(PolicyResetSame, position, prev, ok, "")

		ranked[i] = &RankedBlock{
			Block:        block,
			Position:     position,
			InvitedCount: block.InvitedCount,
			Trend:        movement.Trend,
			Diff:         movement.Diff,
		}
	}

	return ranked, nil
}

// previousPositions maps block id to its 1-based rank on the day before the
// given one, derived from that day's snapshots sorted by invite count.
func (e *Engine) previousPositions(ctx context.Context, levelID int, day uint64) (map[string]int, error) {
	if day == 0 {
		return map[string]int{}, nil
	}

	snaps, err := e.store.SnapshotsByLevelDay(ctx, levelID, day-1)
	if err != nil {
		return nil, err
	}

	positions := make(map[string]int, len(snaps))
	for i, snap := range snaps {
		positions[snap.Block] = i + 1
	}

	return positions, nil
}
