package client

import (
	"sync"
	"time"
)

type cacheEntry[V any] struct {
	value     V
	fetchedAt time.Time
	valid     bool
}

// TTLCache is a get-or-fetch cache with a serve-stale-on-error policy: past
// the TTL the fetch function runs again, but when it fails and an old value
// exists, the old value is served with the stale flag set instead of
// propagating the error. Stale data beats no data for ranking display.
type TTLCache[K comparable, V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[K]cacheEntry[V]
	now     func() time.Time
}

// NewTTLCache creates a cache whose entries expire after ttl.
func NewTTLCache[K comparable, V any](ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		ttl:     ttl,
		entries: make(map[K]cacheEntry[V]),
		now:     time.Now,
	}
}

// GetOrFetch returns the cached value while fresh, otherwise calls fetch.
// The boolean reports staleness: true means fetch failed and the returned
// value is the last known one. An error is only returned when fetch fails
// and no previous value exists.
func (c *TTLCache[K, V]) GetOrFetch(key K, fetch func() (V, error)) (V, bool, error) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	now := c.now()
	if ok && entry.valid && now.Sub(entry.fetchedAt) < c.ttl {
		c.mu.Unlock()
		return entry.value, false, nil
	}
	c.mu.Unlock()

	value, err := fetch()
	if err != nil {
		if ok && entry.valid {
			return entry.value, true, nil
		}

		var zero V
		return zero, false, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry[V]{value: value, fetchedAt: now, valid: true}
	c.mu.Unlock()

	return value, false, nil
}

// Expire forces the next GetOrFetch for a key to refetch, but keeps the
// current value as the stale fallback. Use this to demand fresh data without
// giving up the serve-stale-on-error guarantee.
func (c *TTLCache[K, V]) Expire(key K) {
	c.mu.Lock()
	if entry, ok := c.entries[key]; ok {
		entry.fetchedAt = time.Time{}
		c.entries[key] = entry
	}
	c.mu.Unlock()
}

// Invalidate drops the entry for a key, fallback included.
func (c *TTLCache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}
