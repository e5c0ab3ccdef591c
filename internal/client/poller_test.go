package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockrank/blockrank/internal/common"
	"github.com/blockrank/blockrank/internal/config"
	"github.com/blockrank/blockrank/internal/logger"
)

var registryTestAddr = ethcommon.HexToAddress("0x9999999999999999999999999999999999999999")

type fakeEthClient struct {
	mu          sync.Mutex
	head        uint64
	headErr     error
	logs        []types.Log
	logsErr     error
	filterCalls int
	lastQuery   ethereum.FilterQuery
}

func (f *fakeEthClient) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.head, f.headErr
}

func (f *fakeEthClient) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.filterCalls++
	f.lastQuery = query

	return f.logs, f.logsErr
}

func (f *fakeEthClient) HeaderByNumber(ctx context.Context, blockNum uint64) (*types.Header, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeEthClient) Close() {}

func (f *fakeEthClient) set(head uint64, logs []types.Log) {
	f.mu.Lock()
	f.head = head
	f.logs = logs
	f.mu.Unlock()
}

func newTestPoller(t *testing.T, eth *fakeEthClient, delay time.Duration, refresh func()) *Poller {
	t.Helper()

	cfg := &config.ClientConfig{
		PollInterval: common.NewDuration(time.Second),
		RefreshDelay: common.NewDuration(delay),
	}

	return NewPoller(eth, registryTestAddr, cfg, refresh, logger.NewNopLogger())
}

func TestPoller_FirstTickOnlySetsBaseline(t *testing.T) {
	t.Parallel()

	eth := &fakeEthClient{head: 100}

	var refreshes atomic.Int32
	poller := newTestPoller(t, eth, time.Millisecond, func() { refreshes.Add(1) })

	poller.Tick(context.Background())

	assert.Equal(t, 0, eth.filterCalls)
	assert.Equal(t, int32(0), refreshes.Load())

	// Unchanged head means nothing to scan
	poller.Tick(context.Background())
	assert.Equal(t, 0, eth.filterCalls)
}

func TestPoller_RefreshOnRegistryActivity(t *testing.T) {
	t.Parallel()

	eth := &fakeEthClient{head: 100}

	refreshed := make(chan struct{}, 1)
	poller := newTestPoller(t, eth, time.Millisecond, func() { refreshed <- struct{}{} })

	ctx := context.Background()
	poller.Tick(ctx)

	eth.set(105, []types.Log{{Address: registryTestAddr, BlockNumber: 103}})
	poller.Tick(ctx)

	require.Equal(t, 1, eth.filterCalls)
	assert.Equal(t, uint64(101), eth.lastQuery.FromBlock.Uint64())
	assert.Equal(t, uint64(105), eth.lastQuery.ToBlock.Uint64())
	assert.Equal(t, []ethcommon.Address{registryTestAddr}, eth.lastQuery.Addresses)

	select {
	case <-refreshed:
	case <-time.After(time.Second):
		t.Fatal("refresh was not triggered")
	}
}

func TestPoller_QuietRangeDoesNotRefresh(t *testing.T) {
	t.Parallel()

	eth := &fakeEthClient{head: 100}

	var refreshes atomic.Int32
	poller := newTestPoller(t, eth, time.Millisecond, func() { refreshes.Add(1) })

	ctx := context.Background()
	poller.Tick(ctx)

	eth.set(110, nil)
	poller.Tick(ctx)

	assert.Equal(t, 1, eth.filterCalls)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), refreshes.Load())
}

func TestPoller_DebounceCollapsesDetections(t *testing.T) {
	t.Parallel()

	eth := &fakeEthClient{head: 100}

	var refreshes atomic.Int32
	poller := newTestPoller(t, eth, 50*time.Millisecond, func() { refreshes.Add(1) })

	ctx := context.Background()
	poller.Tick(ctx)

	// Two detections inside the debounce window produce one refresh
	eth.set(105, []types.Log{{Address: registryTestAddr}})
	poller.Tick(ctx)
	eth.set(110, []types.Log{{Address: registryTestAddr}})
	poller.Tick(ctx)

	assert.Eventually(t, func() bool {
		return refreshes.Load() == 1
	}, time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), refreshes.Load())
}

func TestPoller_ErrorsAreToleratedUntilNextTick(t *testing.T) {
	t.Parallel()

	eth := &fakeEthClient{headErr: errors.New("connection refused")}

	var refreshes atomic.Int32
	poller := newTestPoller(t, eth, time.Millisecond, func() { refreshes.Add(1) })

	ctx := context.Background()
	poller.Tick(ctx)

	// Recovery on the next tick starts from a fresh baseline
	eth.mu.Lock()
	eth.headErr = nil
	eth.head = 200
	eth.mu.Unlock()

	poller.Tick(ctx)
	assert.Equal(t, 0, eth.filterCalls)

	eth.set(205, []types.Log{{Address: registryTestAddr}})
	poller.Tick(ctx)
	assert.Equal(t, 1, eth.filterCalls)
}

func TestPoller_ShutdownCancelsPendingRefresh(t *testing.T) {
	t.Parallel()

	eth := &fakeEthClient{head: 100}

	var refreshes atomic.Int32
	poller := newTestPoller(t, eth, 100*time.Millisecond, func() { refreshes.Add(1) })
	poller.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()

	// Wait for the baseline tick, then trigger a detection so a refresh is
	// pending behind the debounce delay
	assert.Eventually(t, func() bool {
		poller.mu.Lock()
		defer poller.mu.Unlock()
		return poller.lastChecked == 100
	}, time.Second, time.Millisecond)

	eth.set(110, []types.Log{{Address: registryTestAddr}})

	assert.Eventually(t, func() bool {
		poller.mu.Lock()
		defer poller.mu.Unlock()
		return poller.pending
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	// The armed timer was stopped, so the refresh never fires
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(0), refreshes.Load())
}

func TestPoller_PauseSkipsResumeCatchesUp(t *testing.T) {
	t.Parallel()

	eth := &fakeEthClient{head: 100}

	refreshed := make(chan struct{}, 1)
	poller := newTestPoller(t, eth, time.Millisecond, func() { refreshed <- struct{}{} })

	ctx := context.Background()
	poller.Tick(ctx)

	poller.Pause()
	eth.set(110, []types.Log{{Address: registryTestAddr}})

	// Resume runs an immediate catch-up tick
	poller.Resume(ctx)
	require.Equal(t, 1, eth.filterCalls)

	select {
	case <-refreshed:
	case <-time.After(time.Second):
		t.Fatal("refresh was not triggered after resume")
	}
}
