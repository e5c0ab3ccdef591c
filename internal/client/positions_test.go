package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockrank/blockrank/internal/logger"
	"github.com/blockrank/blockrank/internal/ranking"
)

func newTestPositionCache(t *testing.T) (*PositionCache, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "positions.json")

	return NewPositionCache(path, logger.NewNopLogger()), path
}

func TestPositionCache_CarriesTrendForward(t *testing.T) {
	t.Parallel()

	cache, _ := newTestPositionCache(t)

	movements, err := cache.Update(1, []string{"0xaaa", "0xbbb"})
	require.NoError(t, err)
	assert.Equal(t, ranking.TrendNew, movements["0xaaa"].Trend)
	assert.Equal(t, ranking.TrendNew, movements["0xbbb"].Trend)

	// B overtakes A
	movements, err = cache.Update(1, []string{"0xbbb", "0xaaa"})
	require.NoError(t, err)
	assert.Equal(t, ranking.Movement{Trend: ranking.TrendUp, Diff: 1}, movements["0xbbb"])
	assert.Equal(t, ranking.Movement{Trend: ranking.TrendDown, Diff: 1}, movements["0xaaa"])

	// Unchanged order keeps showing the last movement instead of "same"
	movements, err = cache.Update(1, []string{"0xbbb", "0xaaa"})
	require.NoError(t, err)
	assert.Equal(t, ranking.TrendUp, movements["0xbbb"].Trend)
	assert.Equal(t, ranking.TrendDown, movements["0xaaa"].Trend)

	entry, ok := cache.Get(1, "0xbbb")
	require.True(t, ok)
	assert.Equal(t, 1, entry.Position)
	assert.Equal(t, ranking.TrendUp, entry.LastTrend)
}

func TestPositionCache_DropsVanishedBlocks(t *testing.T) {
	t.Parallel()

	cache, _ := newTestPositionCache(t)

	_, err := cache.Update(1, []string{"0xaaa", "0xbbb"})
	require.NoError(t, err)

	_, err = cache.Update(1, []string{"0xaaa"})
	require.NoError(t, err)

	_, ok := cache.Get(1, "0xbbb")
	assert.False(t, ok)

	// Levels are tracked independently
	_, err = cache.Update(2, []string{"0xbbb"})
	require.NoError(t, err)

	entry, ok := cache.Get(2, "0xbbb")
	require.True(t, ok)
	assert.Equal(t, ranking.TrendNew, entry.LastTrend)
}

func TestPositionCache_PersistsAcrossInstances(t *testing.T) {
	t.Parallel()

	cache, path := newTestPositionCache(t)

	_, err := cache.Update(1, []string{"0xaaa", "0xbbb"})
	require.NoError(t, err)
	_, err = cache.Update(1, []string{"0xbbb", "0xaaa"})
	require.NoError(t, err)

	reloaded := NewPositionCache(path, logger.NewNopLogger())

	entry, ok := reloaded.Get(1, "0xbbb")
	require.True(t, ok)
	assert.Equal(t, 1, entry.Position)
	assert.Equal(t, ranking.TrendUp, entry.LastTrend)

	// The remembered trend survives the restart for the next comparison
	movements, err := reloaded.Update(1, []string{"0xbbb", "0xaaa"})
	require.NoError(t, err)
	assert.Equal(t, ranking.TrendUp, movements["0xbbb"].Trend)
}

func TestPositionCache_CorruptFileStartsEmpty(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "positions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	cache := NewPositionCache(path, logger.NewNopLogger())

	_, ok := cache.Get(1, "0xaaa")
	assert.False(t, ok)

	movements, err := cache.Update(1, []string{"0xaaa"})
	require.NoError(t, err)
	assert.Equal(t, ranking.TrendNew, movements["0xaaa"].Trend)
}
