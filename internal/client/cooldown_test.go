package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCooldownGuard_DoublesUpToCap(t *testing.T) {
	t.Parallel()

	clock := time.Unix(1700000000, 0)
	guard := NewCooldownGuard(60*time.Second, 300*time.Second)
	guard.now = func() time.Time { return clock }

	assert.True(t, guard.Allow())
	assert.Zero(t, guard.RetryAfter())

	guard.RecordRateLimit()
	assert.False(t, guard.Allow())
	assert.Equal(t, 60*time.Second, guard.RetryAfter())

	// Still blocked halfway through the window
	clock = clock.Add(30 * time.Second)
	assert.False(t, guard.Allow())
	assert.Equal(t, 30*time.Second, guard.RetryAfter())

	// Window elapsed
	clock = clock.Add(30 * time.Second)
	assert.True(t, guard.Allow())

	// Consecutive rate limits double: 120, 240, then the 300s cap
	guard.RecordRateLimit()
	assert.Equal(t, 120*time.Second, guard.RetryAfter())

	clock = clock.Add(120 * time.Second)
	guard.RecordRateLimit()
	assert.Equal(t, 240*time.Second, guard.RetryAfter())

	clock = clock.Add(240 * time.Second)
	guard.RecordRateLimit()
	assert.Equal(t, 300*time.Second, guard.RetryAfter())

	clock = clock.Add(300 * time.Second)
	guard.RecordRateLimit()
	assert.Equal(t, 300*time.Second, guard.RetryAfter())
}

func TestCooldownGuard_SuccessResets(t *testing.T) {
	t.Parallel()

	clock := time.Unix(1700000000, 0)
	guard := NewCooldownGuard(60*time.Second, 300*time.Second)
	guard.now = func() time.Time { return clock }

	guard.RecordRateLimit()
	clock = clock.Add(60 * time.Second)
	guard.RecordRateLimit()
	assert.Equal(t, 120*time.Second, guard.RetryAfter())

	guard.RecordSuccess()
	assert.True(t, guard.Allow())
	assert.Zero(t, guard.RetryAfter())

	// After a success the next rate limit starts from the base again
	guard.RecordRateLimit()
	assert.Equal(t, 60*time.Second, guard.RetryAfter())
}
