package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/blockrank/blockrank/internal/logger"
	"github.com/blockrank/blockrank/internal/ranking"
)

// PositionEntry is the remembered state of one block within a level.
type PositionEntry struct {
	Position  int           `json:"position"`
	LastTrend ranking.Trend `json:"lastTrend"`
}

// PositionCache is the client-local fallback trend tracker, used when
// server-side snapshots are unavailable. It persists per-level positions in
// a JSON file and computes trends with the carry-forward policy: an
// unchanged position keeps showing the previous trend instead of resetting
// to "same". The comparator itself is shared with the server path.
type PositionCache struct {
	path string
	log  *logger.Logger

	mu     sync.Mutex
	levels map[string]map[string]PositionEntry
}

// NewPositionCache loads the cache from path, starting empty when the file
// is missing or unreadable. A corrupt file is discarded, not fatal.
func NewPositionCache(path string, log *logger.Logger) *PositionCache {
	cache := &PositionCache{
		path:   path,
		log:    log,
		levels: make(map[string]map[string]PositionEntry),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warnf("Failed to read position cache %s, starting empty: %v", path, err)
		}
		return cache
	}

	if err := json.Unmarshal(data, &cache.levels); err != nil {
		log.Warnf("Position cache %s is corrupt, starting empty: %v", path, err)
		cache.levels = make(map[string]map[string]PositionEntry)
	}

	return cache
}

// Update records the new ranking of a level, given its block ids ordered
// best first, and returns the movement of every block relative to the cached
// state. Blocks that fell out of the ranking are dropped from the cache.
func (c *PositionCache) Update(levelID int, orderedBlockIDs []string) (map[string]ranking.Movement, error) {
	level := strconv.Itoa(levelID)

	c.mu.Lock()
	defer c.mu.Unlock()

	previous := c.levels[level]
	next := make(map[string]PositionEntry, len(orderedBlockIDs))
	movements := make(map[string]ranking.Movement, len(orderedBlockIDs))

	for i, blockID := range orderedBlockIDs {
		position := i + 1
		entry, ok := previous[blockID]

		movement := ranking.Compare(ranking.PolicyCarryForward, position, entry.Position, ok, entry.LastTrend)
		movements[blockID] = movement
		next[blockID] = PositionEntry{
			Position:  position,
			LastTrend: movement.Trend,
		}
	}

	c.levels[level] = next

	if err := c.save(); err != nil {
		return movements, err
	}

	return movements, nil
}

// Get returns the cached entry of one block.
func (c *PositionCache) Get(levelID int, blockID string) (PositionEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.levels[strconv.Itoa(levelID)][blockID]

	return entry, ok
}

// save writes the cache atomically: a temp file in the same directory is
// renamed over the old one so a crash never leaves a half-written file.
func (c *PositionCache) save() error {
	data, err := json.MarshalIndent(c.levels, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode position cache: %w", err)
	}

	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for position cache: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write position cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close position cache temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), c.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace position cache: %w", err)
	}

	return nil
}
