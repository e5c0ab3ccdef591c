package indexer

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockrank/blockrank/internal/chain"
	"github.com/blockrank/blockrank/internal/logger"
	"github.com/blockrank/blockrank/internal/ranking"
	"github.com/blockrank/blockrank/internal/store"
	"github.com/blockrank/blockrank/tests/helpers"
)

var (
	registryAddr = common.HexToAddress("0x9999999999999999999999999999999999999999")
	userAddr     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	referrerAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
	blockAddr    = common.HexToAddress("0x3333333333333333333333333333333333333333")
	memberAddr   = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

func newTestMaterializer(t *testing.T) (*Materializer, *store.Store, *SourceRegistry) {
	t.Helper()

	s := store.NewStore(helpers.NewTestDB(t, "handlers_test.db"), logger.NewNopLogger())
	engine := ranking.NewEngine(s, logger.NewNopLogger())
	sources := NewSourceRegistry(registryAddr, logger.NewNopLogger())

	return NewMaterializer(s, engine, sources, logger.NewNopLogger()), s, sources
}

func meta(emitter common.Address, txHash string, timestamp uint64) chain.Meta {
	return chain.Meta{
		BlockNumber: 100,
		TxHash:      common.HexToHash(txHash),
		LogIndex:    0,
		Emitter:     emitter,
		Timestamp:   timestamp,
	}
}

func createBlock(t *testing.T, m *Materializer, owner, addr common.Address, level uint8, txHash string, timestamp uint64) {
	t.Helper()

	require.NoError(t, m.Apply(context.Background(), chain.MyBlockCreated{
		Meta:         meta(registryAddr, txHash, timestamp),
		Center:       owner,
		Level:        level,
		BlockAddress: addr,
	}))
}

func TestUserRegistered(t *testing.T) {
	t.Parallel()

	m, s, _ := newTestMaterializer(t)
	ctx := context.Background()

	require.NoError(t, m.Apply(ctx, chain.UserRegistered{
		Meta:     meta(registryAddr, "0xtx1", 1700000000),
		User:     userAddr,
		Referrer: common.Address{},
		Level:    2,
	}))

	user, err := s.GetUser(ctx, store.AddressKey(userAddr))
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, 2, user.Level)
	assert.Nil(t, user.Referrer)
	assert.Equal(t, uint64(1700000000), user.RegisteredAt)

	// Registration fee is not in the payload, amount is recorded as zero
	txn, err := s.GetTransaction(ctx, common.HexToHash("0xtx1").Hex())
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, store.TxTypeRegistration, txn.Type)
	assert.Equal(t, uint64(0), txn.Amount)
}

func TestUserRegistered_ReferrerOnlyWhenRegistered(t *testing.T) {
	t.Parallel()

	m, s, _ := newTestMaterializer(t)
	ctx := context.Background()

	// Referrer not registered yet, reference stays unset
	require.NoError(t, m.Apply(ctx, chain.UserRegistered{
		Meta:     meta(registryAddr, "0xtx1", 1700000000),
		User:     userAddr,
		Referrer: referrerAddr,
		Level:    1,
	}))

	user, err := s.GetUser(ctx, store.AddressKey(userAddr))
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Nil(t, user.Referrer)

	// Once both exist, the referral chain event resolves it
	require.NoError(t, m.Apply(ctx, chain.UserRegistered{
		Meta:  meta(registryAddr, "0xtx2", 1700000100),
		User:  referrerAddr,
		Level: 1,
	}))
	require.NoError(t, m.Apply(ctx, chain.ReferralChainCreated{
		Meta:     meta(registryAddr, "0xtx3", 1700000200),
		User:     userAddr,
		Referrer: referrerAddr,
	}))

	user, err = s.GetUser(ctx, store.AddressKey(userAddr))
	require.NoError(t, err)
	require.NotNil(t, user.Referrer)
	assert.Equal(t, referrerAddr, *user.Referrer)

	// Referrer is set at most once
	require.NoError(t, m.Apply(ctx, chain.ReferralChainCreated{
		Meta:     meta(registryAddr, "0xtx4", 1700000300),
		User:     userAddr,
		Referrer: memberAddr,
	}))

	user, err = s.GetUser(ctx, store.AddressKey(userAddr))
	require.NoError(t, err)
	assert.Equal(t, referrerAddr, *user.Referrer)
}

func TestMyBlockCreated_IsIdempotent(t *testing.T) {
	t.Parallel()

	m, s, sources := newTestMaterializer(t)
	ctx := context.Background()

	createBlock(t, m, userAddr, blockAddr, 1, "0xtx1", 1700006400)
	createBlock(t, m, userAddr, blockAddr, 1, "0xtx1", 1700006400)

	block, err := s.GetBlock(ctx, store.AddressKey(blockAddr))
	require.NoError(t, err)
	require.NotNil(t, block)
	assert.Equal(t, store.AddressKey(userAddr), block.Owner)
	assert.Equal(t, 1, block.LevelID)
	assert.Equal(t, store.StatusActive, block.Status)
	assert.Equal(t, uint64(0), block.InvitedCount)
	assert.Equal(t, uint64(1), block.Position)

	// The owner is created on demand with the event's level
	owner, err := s.GetUser(ctx, store.AddressKey(userAddr))
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, 1, owner.Level)

	// Replay must not duplicate the creation-day snapshot
	day := ranking.DayOf(1700006400)
	snaps, err := s.SnapshotsByLevelDay(ctx, 1, day)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, uint64(0), snaps[0].InvitedCount)

	assert.True(t, sources.IsWatched(blockAddr))
}

func TestBlockNumbering_StableUnderInserts(t *testing.T) {
	t.Parallel()

	m, s, _ := newTestMaterializer(t)
	ctx := context.Background()

	x := common.HexToAddress("0xaaa0000000000000000000000000000000000001")
	y := common.HexToAddress("0xaaa0000000000000000000000000000000000002")
	z := common.HexToAddress("0xaaa0000000000000000000000000000000000003")
	w := common.HexToAddress("0xaaa0000000000000000000000000000000000004")

	createBlock(t, m, userAddr, x, 1, "0xt1", 1700000000)
	createBlock(t, m, userAddr, y, 1, "0xt2", 1700000100)
	createBlock(t, m, userAddr, z, 1, "0xt3", 1700000200)

	for i, addr := range []common.Address{x, y, z} {
		block, err := s.GetBlock(ctx, store.AddressKey(addr))
		require.NoError(t, err)
		require.NotNil(t, block)
		assert.Equal(t, uint64(i+1), block.Position)
	}

	createBlock(t, m, userAddr, w, 1, "0xt4", 1700000300)

	block, err := s.GetBlock(ctx, store.AddressKey(w))
	require.NoError(t, err)
	assert.Equal(t, uint64(4), block.Position)

	// Earlier numbers are untouched by the insert
	for i, addr := range []common.Address{x, y, z} {
		block, err := s.GetBlock(ctx, store.AddressKey(addr))
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), block.Position)
	}
}

func TestMemberJoined_CreateOrLoad(t *testing.T) {
	t.Parallel()

	m, s, _ := newTestMaterializer(t)
	ctx := context.Background()

	createBlock(t, m, userAddr, blockAddr, 1, "0xt1", 1700000000)

	// A wallet never seen before gets exactly one user at level 1
	require.NoError(t, m.Apply(ctx, chain.MemberJoined{
		Meta:     meta(blockAddr, "0xt2", 1700000100),
		Member:   memberAddr,
		Position: 3,
		Amount:   1000000,
	}))

	member, err := s.GetUser(ctx, store.AddressKey(memberAddr))
	require.NoError(t, err)
	require.NotNil(t, member)
	assert.Equal(t, 1, member.Level)

	members, err := s.MembersByBlock(ctx, store.AddressKey(blockAddr))
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, uint64(3), members[0].Position)

	txn, err := s.GetTransaction(ctx, common.HexToHash("0xt2").Hex())
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, store.TxTypeJoin, txn.Type)
	assert.Equal(t, uint64(1000000), txn.Amount)
	assert.Equal(t, store.AddressKey(blockAddr), txn.Block)

	// A registered wallet keeps its existing level when joining
	require.NoError(t, m.Apply(ctx, chain.UserRegistered{
		Meta: meta(registryAddr, "0xt3", 1700000200), User: referrerAddr, Level: 3,
	}))
	require.NoError(t, m.Apply(ctx, chain.MemberJoined{
		Meta:   meta(blockAddr, "0xt4", 1700000300),
		Member: referrerAddr, Position: 4, Amount: 1000000,
	}))

	existing, err := s.GetUser(ctx, store.AddressKey(referrerAddr))
	require.NoError(t, err)
	assert.Equal(t, 3, existing.Level)

	// Replaying the join duplicates nothing
	require.NoError(t, m.Apply(ctx, chain.MemberJoined{
		Meta:   meta(blockAddr, "0xt4", 1700000300),
		Member: referrerAddr, Position: 4, Amount: 1000000,
	}))

	members, err = s.MembersByBlock(ctx, store.AddressKey(blockAddr))
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestMemberJoined_UnknownBlockIsSkipped(t *testing.T) {
	t.Parallel()

	m, s, _ := newTestMaterializer(t)
	ctx := context.Background()

	require.NoError(t, m.Apply(ctx, chain.MemberJoined{
		Meta:   meta(blockAddr, "0xt1", 1700000000),
		Member: memberAddr, Position: 1, Amount: 100,
	}))

	member, err := s.GetUser(ctx, store.AddressKey(memberAddr))
	require.NoError(t, err)
	assert.Nil(t, member)
}

func TestReferralCodeGenerated(t *testing.T) {
	t.Parallel()

	m, s, _ := newTestMaterializer(t)
	ctx := context.Background()

	// Must not create a user as a side effect
	require.NoError(t, m.Apply(ctx, chain.ReferralCodeGenerated{
		Meta:   meta(registryAddr, "0xt1", 1700000000),
		Wallet: userAddr,
		Code:   []byte("REF123"),
	}))

	user, err := s.GetUser(ctx, store.AddressKey(userAddr))
	require.NoError(t, err)
	assert.Nil(t, user)

	require.NoError(t, m.Apply(ctx, chain.UserRegistered{
		Meta: meta(registryAddr, "0xt2", 1700000100), User: userAddr, Level: 1,
	}))
	require.NoError(t, m.Apply(ctx, chain.ReferralCodeGenerated{
		Meta:   meta(registryAddr, "0xt3", 1700000200),
		Wallet: userAddr,
		Code:   []byte("REF123"),
	}))

	user, err = s.GetUser(ctx, store.AddressKey(userAddr))
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "REF123", user.ReferralCode)
}

func TestInviteCountUpdated(t *testing.T) {
	t.Parallel()

	m, s, _ := newTestMaterializer(t)
	ctx := context.Background()

	// Unknown block is tolerated silently
	require.NoError(t, m.Apply(ctx, chain.InviteCountUpdated{
		Meta:         meta(registryAddr, "0xt0", 1700006400),
		BlockAddress: blockAddr,
		NewCount:     5,
	}))

	createdAt := uint64(1700006400)
	createBlock(t, m, userAddr, blockAddr, 1, "0xt1", createdAt)

	day := ranking.DayOf(createdAt)
	sameDayLater := createdAt + 7200

	require.NoError(t, m.Apply(ctx, chain.InviteCountUpdated{
		Meta:         meta(registryAddr, "0xt2", createdAt + 3600),
		BlockAddress: blockAddr,
		NewCount:     5,
	}))
	require.NoError(t, m.Apply(ctx, chain.InviteCountUpdated{
		Meta:         meta(registryAddr, "0xt3", sameDayLater),
		BlockAddress: blockAddr,
		NewCount:     9,
	}))

	block, err := s.GetBlock(ctx, store.AddressKey(blockAddr))
	require.NoError(t, err)
	assert.Equal(t, uint64(9), block.InvitedCount)

	// Two same-day updates leave exactly one snapshot with the later count
	snaps, err := s.SnapshotsByLevelDay(ctx, 1, day)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, uint64(9), snaps[0].InvitedCount)
	assert.Equal(t, sameDayLater, snaps[0].Timestamp)
}

func TestBlockCompleted_IsTerminal(t *testing.T) {
	t.Parallel()

	m, s, _ := newTestMaterializer(t)
	ctx := context.Background()

	createBlock(t, m, userAddr, blockAddr, 1, "0xt1", 1700000000)

	require.NoError(t, m.Apply(ctx, chain.BlockCompleted{
		Meta: meta(blockAddr, "0xt2", 1700000500),
	}))

	block, err := s.GetBlock(ctx, store.AddressKey(blockAddr))
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, block.Status)
	assert.Equal(t, uint64(1700000500), block.CompletedAt)

	// Completed is sticky
	require.NoError(t, m.Apply(ctx, chain.BlockCompleted{
		Meta: meta(blockAddr, "0xt3", 1700000900),
	}))

	block, err = s.GetBlock(ctx, store.AddressKey(blockAddr))
	require.NoError(t, err)
	assert.Equal(t, uint64(1700000500), block.CompletedAt)
}

func TestBlockSettled(t *testing.T) {
	t.Parallel()

	m, s, _ := newTestMaterializer(t)
	ctx := context.Background()

	createBlock(t, m, userAddr, blockAddr, 1, "0xt1", 1700000000)

	// Settling without advancing leaves the block active
	require.NoError(t, m.Apply(ctx, chain.BlockSettled{
		Meta:         meta(registryAddr, "0xt2", 1700000100),
		BlockAddress: blockAddr,
		Advanced:     false,
	}))

	block, err := s.GetBlock(ctx, store.AddressKey(blockAddr))
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, block.Status)

	require.NoError(t, m.Apply(ctx, chain.BlockSettled{
		Meta:         meta(registryAddr, "0xt3", 1700000200),
		BlockAddress: blockAddr,
		Advanced:     true,
	}))

	block, err = s.GetBlock(ctx, store.AddressKey(blockAddr))
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, block.Status)
	assert.Equal(t, uint64(1700000200), block.CompletedAt)

	owner, err := s.GetUser(ctx, store.AddressKey(userAddr))
	require.NoError(t, err)
	assert.Equal(t, 2, owner.Level)
}
