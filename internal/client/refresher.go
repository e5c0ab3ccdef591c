package client

import (
	"context"
	"time"

	"github.com/blockrank/blockrank/internal/logger"
)

// AutoRefresher runs a function on an interval, doubling the interval on
// consecutive failures up to a ceiling and resetting to the base on success.
// The backoff state lives in the loop and is not persisted.
type AutoRefresher struct {
	base time.Duration
	max  time.Duration
	fn   func(context.Context) error
	log  *logger.Logger
}

// NewAutoRefresher creates a refresher with the given base and maximum
// intervals.
func NewAutoRefresher(base, max time.Duration, fn func(context.Context) error, log *logger.Logger) *AutoRefresher {
	return &AutoRefresher{
		base: base,
		max:  max,
		fn:   fn,
		log:  log,
	}
}

// Run loops until the context is cancelled.
func (r *AutoRefresher) Run(ctx context.Context) error {
	interval := r.base

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}

		if err := r.fn(ctx); err != nil {
			interval = nextBackoff(interval, r.max)
			r.log.Warnf("Refresh failed, next attempt in %s: %v", interval, err)
			continue
		}

		interval = r.base
	}
}

// nextBackoff doubles the interval, capped at max.
func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}

	return next
}
