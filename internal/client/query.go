package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/blockrank/blockrank/internal/api"
	"github.com/blockrank/blockrank/internal/config"
	"github.com/blockrank/blockrank/internal/logger"
)

// QueryClient talks to the query API. Every call goes through the shared
// cooldown guard: during cooldown, requests are rejected locally with
// ErrRateLimited before any network traffic happens.
type QueryClient struct {
	baseURL string
	http    *http.Client
	guard   *CooldownGuard
	log     *logger.Logger
}

// NewQueryClient creates a client for the query API sharing the given guard.
func NewQueryClient(cfg *config.ClientConfig, guard *CooldownGuard, log *logger.Logger) *QueryClient {
	return &QueryClient{
		baseURL: strings.TrimRight(cfg.QueryURL, "/"),
		http: &http.Client{
			Timeout: cfg.RequestTimeout.Duration,
		},
		guard: guard,
		log:   log,
	}
}

// Ranking fetches the trend-annotated ranking of a level.
func (c *QueryClient) Ranking(ctx context.Context, levelID int) (*api.RankingResponse, error) {
	var response api.RankingResponse
	if err := c.get(ctx, fmt.Sprintf("/api/v1/ranking/%d", levelID), &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// Blocks fetches blocks of a level ordered by invite count, best first.
func (c *QueryClient) Blocks(ctx context.Context, levelID int) (*api.BlocksResponse, error) {
	var response api.BlocksResponse
	path := fmt.Sprintf("/api/v1/blocks?level=%d&order_by=invited_count&order_direction=desc", levelID)
	if err := c.get(ctx, path, &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// Health fetches the indexer health report.
func (c *QueryClient) Health(ctx context.Context) (*api.HealthResponse, error) {
	var response api.HealthResponse
	if err := c.get(ctx, "/health", &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// get performs one guarded GET request and decodes the JSON response.
func (c *QueryClient) get(ctx context.Context, path string, out any) error {
	if !c.guard.Allow() {
		return fmt.Errorf("%w: cooling down for %s", ErrRateLimited, c.guard.RetryAfter())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("query %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.guard.RecordRateLimit()
		retryAfter := parseRetryAfter(resp)
		return fmt.Errorf("%w: endpoint returned 429, retry after %s", ErrRateLimited, retryAfter)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("query %s returned status %d: %s", path, resp.StatusCode, string(body))
	}

	c.guard.RecordSuccess()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response of %s: %w", path, err)
	}

	return nil
}

// parseRetryAfter reads the Retry-After header, defaulting to one minute.
func parseRetryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return time.Minute
	}

	seconds, err := strconv.Atoi(header)
	if err != nil || seconds <= 0 {
		return time.Minute
	}

	return time.Duration(seconds) * time.Second
}
