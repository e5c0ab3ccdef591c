package client

import (
	"sync"
	"time"
)

// CooldownGuard is the shared throttle state for every caller of the query
// endpoint. After a rate-limit response, callers must stay away for the
// cooldown window; each consecutive rate limit doubles the window up to a
// cap, and any success resets it to the base. One guard instance is shared
// process-wide so unrelated callers benefit from the same signal.
type CooldownGuard struct {
	mu      sync.Mutex
	base    time.Duration
	max     time.Duration
	current time.Duration // zero when no rate limit recorded since last success
	until   time.Time
	now     func() time.Time
}

// NewCooldownGuard creates a guard with the given base and maximum windows.
func NewCooldownGuard(base, max time.Duration) *CooldownGuard {
	return &CooldownGuard{
		base: base,
		max:  max,
		now:  time.Now,
	}
}

// Allow reports whether a query may be sent now. Callers must check before
// every call so client-side rejection happens without touching the endpoint.
func (g *CooldownGuard) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return !g.now().Before(g.until)
}

// RetryAfter returns how long until queries are allowed again.
func (g *CooldownGuard) RetryAfter() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	wait := g.until.Sub(g.now())
	if wait < 0 {
		return 0
	}

	return wait
}

// RecordRateLimit enters (or extends) the cooldown. The first rate limit
// after a success starts at the base window; each one after that doubles the
// window, capped at the maximum.
func (g *CooldownGuard) RecordRateLimit() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current == 0 {
		g.current = g.base
	} else {
		g.current *= 2
		if g.current > g.max {
			g.current = g.max
		}
	}

	g.until = g.now().Add(g.current)
}

// RecordSuccess resets the cooldown state to the base.
func (g *CooldownGuard) RecordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.current = 0
	g.until = time.Time{}
}
