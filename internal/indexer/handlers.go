package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/blockrank/blockrank/internal/chain"
	"github.com/blockrank/blockrank/internal/logger"
	"github.com/blockrank/blockrank/internal/metrics"
	"github.com/blockrank/blockrank/internal/ranking"
	"github.com/blockrank/blockrank/internal/store"
)

// Materializer folds typed events into the entity store, one handler per
// event type. Handlers run strictly in chain order (block number, then log
// index); that ordering is what makes create-or-load safe without locking.
// Every handler is replay-safe: ids are content-derived, writes are upserts.
type Materializer struct {
	store   *store.Store
	engine  *ranking.Engine
	sources *SourceRegistry
	log     *logger.Logger
}

// NewMaterializer wires the handler set to its store, snapshot engine and
// source registry.
func NewMaterializer(s *store.Store, engine *ranking.Engine, sources *SourceRegistry, log *logger.Logger) *Materializer {
	return &Materializer{
		store:   s,
		engine:  engine,
		sources: sources,
		log:     log,
	}
}

// Apply dispatches one event to its handler. A missing referenced entity is
// a silent no-op, never an error: out-of-order or partial data must not block
// the stream behind it.
func (m *Materializer) Apply(ctx context.Context, event chain.Event) error {
	start := time.Now()
	defer func() {
		metrics.HandlerDurationLog(event.Name(), time.Since(start))
	}()

	var err error
	switch ev := event.(type) {
	case chain.UserRegistered:
		err = m.handleUserRegistered(ctx, ev)
	case chain.MyBlockCreated:
		err = m.handleMyBlockCreated(ctx, ev)
	case chain.ReferralCodeGenerated:
		err = m.handleReferralCodeGenerated(ctx, ev)
	case chain.ReferralChainCreated:
		err = m.handleReferralChainCreated(ctx, ev)
	case chain.InviteCountUpdated:
		err = m.handleInviteCountUpdated(ctx, ev)
	case chain.BlockSettled:
		err = m.handleBlockSettled(ctx, ev)
	case chain.MemberJoined:
		err = m.handleMemberJoined(ctx, ev)
	case chain.BlockCompleted:
		err = m.handleBlockCompleted(ctx, ev)
	default:
		metrics.EventSkippedInc("no_handler")
		m.log.Warnf("No handler for event %s", event.Name())
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to apply %s at block %d log %d: %w",
			event.Name(), event.EventMeta().BlockNumber, event.EventMeta().LogIndex, err)
	}

	metrics.EventProcessedInc(event.Name())

	return nil
}

func (m *Materializer) handleUserRegistered(ctx context.Context, ev chain.UserRegistered) error {
	id := store.AddressKey(ev.User)

	user, err := m.store.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if user == nil {
		user = &store.User{
			ID:           id,
			RegisteredAt: ev.Timestamp,
		}
	}
	user.Level = int(ev.Level)

	// Referrer is assigned at most once. Registration happens once per
	// wallet, so on replay the overwrite would be the same value anyway.
	if ev.Referrer != (common.Address{}) && user.Referrer == nil {
		referrer, err := m.store.GetUser(ctx, store.AddressKey(ev.Referrer))
		if err != nil {
			return err
		}
		if referrer != nil {
			addr := ev.Referrer
			user.Referrer = &addr
		}
	}

	if err := m.store.PutUser(ctx, user); err != nil {
		return err
	}

	// The registration fee is not in the event payload, so the amount is
	// recorded as zero. Known information gap of the contract interface.
	return m.store.PutTransaction(ctx, &store.Transaction{
		ID:        ev.TxHash.Hex(),
		User:      id,
		Type:      store.TxTypeRegistration,
		Amount:    0,
		Timestamp: ev.Timestamp,
	})
}

func (m *Materializer) handleMyBlockCreated(ctx context.Context, ev chain.MyBlockCreated) error {
	ownerID := store.AddressKey(ev.Center)

	owner, err := m.store.GetUser(ctx, ownerID)
	if err != nil {
		return err
	}
	if owner == nil {
		owner = &store.User{
			ID:           ownerID,
			Level:        int(ev.Level),
			RegisteredAt: ev.Timestamp,
		}
		if err := m.store.PutUser(ctx, owner); err != nil {
			return err
		}
	}

	blockID := store.AddressKey(ev.BlockAddress)

	block, err := m.store.GetBlock(ctx, blockID)
	if err != nil {
		return err
	}
	if block != nil {
		// Replay of the creation event. The entity, snapshot and numbering
		// already exist; only make sure the source is still watched.
		m.sources.Register(ev.BlockAddress)
		return nil
	}

	// Numbering within a level is assigned once at creation and is stable
	// under later inserts, so it comes from a counter, not from re-sorting.
	maxPosition, err := m.store.MaxBlockPosition(ctx, int(ev.Level))
	if err != nil {
		return err
	}

	block = &store.Block{
		ID:           blockID,
		Owner:        ownerID,
		LevelID:      int(ev.Level),
		Status:       store.StatusActive,
		InvitedCount: 0,
		Position:     maxPosition + 1,
		CreatedAt:    ev.Timestamp,
	}

	if err := m.store.PutBlock(ctx, block); err != nil {
		return err
	}

	if err := m.engine.RecordSnapshot(ctx, block, ev.Timestamp); err != nil {
		return err
	}

	m.sources.Register(ev.BlockAddress)

	m.log.Infof("Block %s created at level %d (number %d) by %s",
		blockID, block.LevelID, block.Position, ownerID)

	return nil
}

func (m *Materializer) handleReferralCodeGenerated(ctx context.Context, ev chain.ReferralCodeGenerated) error {
	user, err := m.store.GetUser(ctx, store.AddressKey(ev.Wallet))
	if err != nil {
		return err
	}
	if user == nil {
		// This event must not create a user as a side effect.
		metrics.EventSkippedInc("missing_user")
		m.log.Debugf("ReferralCodeGenerated for unknown wallet %s, skipping", ev.Wallet.Hex())
		return nil
	}

	user.ReferralCode = string(ev.Code)

	return m.store.PutUser(ctx, user)
}

func (m *Materializer) handleReferralChainCreated(ctx context.Context, ev chain.ReferralChainCreated) error {
	user, err := m.store.GetUser(ctx, store.AddressKey(ev.User))
	if err != nil {
		return err
	}
	referrer, err := m.store.GetUser(ctx, store.AddressKey(ev.Referrer))
	if err != nil {
		return err
	}
	if user == nil || referrer == nil {
		// Takes effect only after both parties are registered.
		metrics.EventSkippedInc("missing_user")
		return nil
	}

	if user.Referrer == nil {
		addr := ev.Referrer
		user.Referrer = &addr
		return m.store.PutUser(ctx, user)
	}

	return nil
}

func (m *Materializer) handleInviteCountUpdated(ctx context.Context, ev chain.InviteCountUpdated) error {
	block, err := m.store.GetBlock(ctx, store.AddressKey(ev.BlockAddress))
	if err != nil {
		return err
	}
	if block == nil {
		// Creation is guaranteed to precede updates on chain; a miss here
		// means partial data, tolerated rather than fatal.
		metrics.EventSkippedInc("missing_block")
		m.log.Debugf("InviteCountUpdated for unknown block %s, skipping", ev.BlockAddress.Hex())
		return nil
	}

	block.InvitedCount = ev.NewCount

	if err := m.store.PutBlock(ctx, block); err != nil {
		return err
	}

	return m.engine.RecordSnapshot(ctx, block, ev.Timestamp)
}

func (m *Materializer) handleBlockSettled(ctx context.Context, ev chain.BlockSettled) error {
	block, err := m.store.GetBlock(ctx, store.AddressKey(ev.BlockAddress))
	if err != nil {
		return err
	}
	if block == nil {
		metrics.EventSkippedInc("missing_block")
		return nil
	}

	if !ev.Advanced {
		return nil
	}

	// An advancing settlement moves the owner to the next level.
	// The level never goes backwards, so replays are harmless.
	owner, err := m.store.GetUser(ctx, block.Owner)
	if err != nil {
		return err
	}
	if owner != nil && owner.Level <= block.LevelID {
		owner.Level = block.LevelID + 1
		if err := m.store.PutUser(ctx, owner); err != nil {
			return err
		}
	}

	return m.completeBlock(ctx, block, ev.Timestamp)
}

func (m *Materializer) handleMemberJoined(ctx context.Context, ev chain.MemberJoined) error {
	// The event carries no block parameter; the emitting contract is the block.
	blockID := store.AddressKey(ev.Emitter)

	block, err := m.store.GetBlock(ctx, blockID)
	if err != nil {
		return err
	}
	if block == nil {
		metrics.EventSkippedInc("missing_block")
		m.log.Debugf("MemberJoined from unknown block %s, skipping", ev.Emitter.Hex())
		return nil
	}

	memberID := store.AddressKey(ev.Member)

	member, err := m.store.GetUser(ctx, memberID)
	if err != nil {
		return err
	}
	if member == nil {
		// A joining wallet never seen before starts at level 1. An existing
		// user's level is left untouched.
		member = &store.User{
			ID:           memberID,
			Level:        1,
			RegisteredAt: ev.Timestamp,
		}
		if err := m.store.PutUser(ctx, member); err != nil {
			return err
		}
	}

	seat := &store.BlockMember{
		ID:       store.MemberKey(blockID, memberID),
		Block:    blockID,
		Member:   memberID,
		Position: ev.Position,
		JoinedAt: ev.Timestamp,
	}
	if err := m.store.PutBlockMember(ctx, seat); err != nil {
		return err
	}

	return m.store.PutTransaction(ctx, &store.Transaction{
		ID:        ev.TxHash.Hex(),
		User:      memberID,
		Type:      store.TxTypeJoin,
		Amount:    ev.Amount,
		Block:     blockID,
		Timestamp: ev.Timestamp,
	})
}

func (m *Materializer) handleBlockCompleted(ctx context.Context, ev chain.BlockCompleted) error {
	block, err := m.store.GetBlock(ctx, store.AddressKey(ev.Emitter))
	if err != nil {
		return err
	}
	if block == nil {
		metrics.EventSkippedInc("missing_block")
		return nil
	}

	return m.completeBlock(ctx, block, ev.Timestamp)
}

// completeBlock moves a block into its terminal state. Completed is sticky:
// a block that already completed is never touched again.
func (m *Materializer) completeBlock(ctx context.Context, block *store.Block, timestamp uint64) error {
	if block.Status == store.StatusCompleted {
		return nil
	}

	block.Status = store.StatusCompleted
	block.CompletedAt = timestamp

	if err := m.store.PutBlock(ctx, block); err != nil {
		return err
	}

	m.log.Infof("Block %s completed at %d", block.ID, timestamp)

	return nil
}
