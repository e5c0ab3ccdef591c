package indexer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blockrankcommon "github.com/blockrank/blockrank/internal/common"
	"github.com/blockrank/blockrank/internal/config"
	"github.com/blockrank/blockrank/internal/logger"
	"github.com/blockrank/blockrank/internal/ranking"
	"github.com/blockrank/blockrank/internal/store"
	"github.com/blockrank/blockrank/tests/helpers"
)

type fakeSyncClient struct {
	mu          sync.Mutex
	head        uint64
	logs        []types.Log
	filterCalls int
}

func (f *fakeSyncClient) BlockNumber(ctx context.Context) (uint64, error) {
	return f.head, nil
}

func (f *fakeSyncClient) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.filterCalls++

	watched := make(map[common.Address]bool, len(query.Addresses))
	for _, addr := range query.Addresses {
		watched[addr] = true
	}

	var matched []types.Log
	for _, log := range f.logs {
		if log.BlockNumber < query.FromBlock.Uint64() || log.BlockNumber > query.ToBlock.Uint64() {
			continue
		}
		if !watched[log.Address] {
			continue
		}
		matched = append(matched, log)
	}

	return matched, nil
}

func (f *fakeSyncClient) HeaderByNumber(ctx context.Context, blockNum uint64) (*types.Header, error) {
	return &types.Header{Time: 1700000000 + blockNum}, nil
}

func (f *fakeSyncClient) Close() {}

func abiWord(v uint64) []byte {
	word := make([]byte, 32)
	for i := 0; v > 0; i++ {
		word[31-i] = byte(v)
		v >>= 8
	}
	return word
}

func newTestPipeline(t *testing.T, client *fakeSyncClient, startBlock uint64) (*Pipeline, *store.Store, *SourceRegistry) {
	t.Helper()

	s := store.NewStore(helpers.NewTestDB(t, "pipeline_test.db"), logger.NewNopLogger())
	engine := ranking.NewEngine(s, logger.NewNopLogger())
	sources := NewSourceRegistry(registryAddr, logger.NewNopLogger())
	materializer := NewMaterializer(s, engine, sources, logger.NewNopLogger())

	cfg := &config.ChainConfig{
		RPCURL:          "http://localhost:8545",
		RegistryAddress: registryAddr.Hex(),
		StartBlock:      startBlock,
		ChunkSize:       5000,
		PollInterval:    blockrankcommon.NewDuration(time.Second),
	}

	return NewPipeline(client, s, sources, materializer, cfg, logger.NewNopLogger()), s, sources
}

func TestPipeline_SyncDiscoversDynamicSources(t *testing.T) {
	t.Parallel()

	// A block contract created inside the range emits its own log later in
	// the same range. The first fetch cannot see it because the contract was
	// not in the address set yet.
	client := &fakeSyncClient{
		head: 11,
		logs: []types.Log{
			{
				Address: registryAddr,
				Topics: []common.Hash{
					crypto.Keccak256Hash([]byte("MyBlockCreated(address,uint8,address)")),
					common.BytesToHash(userAddr.Bytes()),
				},
				Data:        append(abiWord(1), common.BytesToHash(blockAddr.Bytes()).Bytes()...),
				BlockNumber: 10,
				TxHash:      common.HexToHash("0xc1"),
				Index:       0,
			},
			{
				Address: blockAddr,
				Topics: []common.Hash{
					crypto.Keccak256Hash([]byte("MemberJoined(address,uint256,uint256)")),
					common.BytesToHash(memberAddr.Bytes()),
				},
				Data:        append(abiWord(1), abiWord(1000000)...),
				BlockNumber: 11,
				TxHash:      common.HexToHash("0xc2"),
				Index:       0,
			},
		},
	}

	pipeline, s, sources := newTestPipeline(t, client, 10)
	ctx := context.Background()

	require.NoError(t, pipeline.Sync(ctx))

	block, err := s.GetBlock(ctx, store.AddressKey(blockAddr))
	require.NoError(t, err)
	require.NotNil(t, block)

	// The member join from the freshly discovered contract was picked up by
	// the re-fetch of the same range.
	members, err := s.MembersByBlock(ctx, store.AddressKey(blockAddr))
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, store.AddressKey(memberAddr), members[0].Member)

	assert.True(t, sources.IsWatched(blockAddr))
	assert.GreaterOrEqual(t, client.filterCalls, 2)

	state, err := s.GetSyncState(ctx)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, uint64(11), state.LastIndexedBlock)
}

func TestPipeline_ResumesFromCheckpoint(t *testing.T) {
	t.Parallel()

	client := &fakeSyncClient{head: 11}
	pipeline, s, _ := newTestPipeline(t, client, 10)
	ctx := context.Background()

	require.NoError(t, s.SaveCheckpoint(ctx, 11, common.HexToHash("0xdd"), 1700000011))

	// Nothing above the checkpoint, so no log fetch happens at all
	require.NoError(t, pipeline.Sync(ctx))
	assert.Equal(t, 0, client.filterCalls)
}

func TestPipeline_BadLogsDoNotBlockTheStream(t *testing.T) {
	t.Parallel()

	client := &fakeSyncClient{
		head: 10,
		logs: []types.Log{
			{
				Address: registryAddr,
				Topics: []common.Hash{
					crypto.Keccak256Hash([]byte("SomeFutureEvent(address)")),
					common.BytesToHash(userAddr.Bytes()),
				},
				BlockNumber: 10,
				Index:       0,
			},
			{
				// MemberJoined with truncated data is malformed, skipped
				Address: registryAddr,
				Topics: []common.Hash{
					crypto.Keccak256Hash([]byte("MemberJoined(address,uint256,uint256)")),
					common.BytesToHash(memberAddr.Bytes()),
				},
				Data:        abiWord(1),
				BlockNumber: 10,
				Index:       1,
			},
			{
				Address: registryAddr,
				Topics: []common.Hash{
					crypto.Keccak256Hash([]byte("UserRegistered(address,address,uint8)")),
					common.BytesToHash(userAddr.Bytes()),
					common.BytesToHash(common.Address{}.Bytes()),
				},
				Data:        abiWord(1),
				BlockNumber: 10,
				TxHash:      common.HexToHash("0xc3"),
				Index:       2,
			},
		},
	}

	pipeline, s, _ := newTestPipeline(t, client, 10)
	ctx := context.Background()

	require.NoError(t, pipeline.Sync(ctx))

	// The valid event behind the bad ones still landed
	user, err := s.GetUser(ctx, store.AddressKey(userAddr))
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, 1, user.Level)

	state, err := s.GetSyncState(ctx)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, uint64(10), state.LastIndexedBlock)
}
