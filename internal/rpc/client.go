package rpc

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	ethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/blockrank/blockrank/internal/config"
)

// EthClient is the subset of chain access the indexer and poller need.
type EthClient interface {
	// BlockNumber returns the current chain head number.
	BlockNumber(ctx context.Context) (uint64, error)

	// FilterLogs retrieves logs matching the given filter query.
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)

	// HeaderByNumber retrieves the header for a specific block number.
	HeaderByNumber(ctx context.Context, blockNum uint64) (*types.Header, error)

	Close()
}

// Compile-time check to ensure Client implements the EthClient interface.
var _ EthClient = (*Client)(nil)

// Client wraps the Ethereum RPC client with retry-aware convenience methods.
type Client struct {
	eth   *ethclient.Client
	rpc   *ethrpc.Client
	retry *config.RetryConfig
}

// NewClient creates a new RPC client connected to the given endpoint.
// A nil retry configuration disables retries.
func NewClient(ctx context.Context, endpoint string, retry *config.RetryConfig) (*Client, error) {
	rpcClient, err := ethrpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", endpoint, err)
	}

	return &Client{
		eth:   ethclient.NewClient(rpcClient),
		rpc:   rpcClient,
		retry: retry,
	}, nil
}

// Close closes the RPC client connection.
func (c *Client) Close() {
	c.eth.Close()
}

// BlockNumber returns the current chain head number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var head uint64
	err := retryWithBackoff(ctx, c.retry, "eth_blockNumber", func() error {
		var err error
		head, err = c.eth.BlockNumber(ctx)
		return err
	})
	return head, err
}

// FilterLogs retrieves logs matching the given filter query.
func (c *Client) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := retryWithBackoff(ctx, c.retry, "eth_getLogs", func() error {
		var err error
		logs, err = c.eth.FilterLogs(ctx, query)
		return err
	})
	return logs, err
}

// HeaderByNumber retrieves the header for a specific block number.
func (c *Client) HeaderByNumber(ctx context.Context, blockNum uint64) (*types.Header, error) {
	var header *types.Header
	err := retryWithBackoff(ctx, c.retry, "eth_getBlockByNumber", func() error {
		var err error
		header, err = c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNum))
		return err
	})
	return header, err
}
