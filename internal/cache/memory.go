package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Memory is a concurrent-safe LRU cache with per-entry TTL expiration.
// It is the default backend for single-process deployments.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]*memoryEntry
	order      []string // LRU order: front=oldest, back=newest
	maxEntries int
	hits       atomic.Int64
	misses     atomic.Int64
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// Stats contains cache performance statistics.
type Stats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// NewMemory creates a Memory cache with the given capacity. A
// non-positive capacity falls back to a sensible default.
func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &Memory{
		entries:    make(map[string]*memoryEntry),
		maxEntries: maxEntries,
	}
}

// Get implements Cache.
func (c *Memory) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil, nil
	}

	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		c.removeFromOrder(key)
		c.misses.Add(1)
		return nil, nil
	}

	// Move to back (most recently used).
	c.removeFromOrder(key)
	c.order = append(c.order, key)
	c.hits.Add(1)
	return entry.data, nil
}

// Set implements Cache.
func (c *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := time.Now().Add(ttl)

	if _, ok := c.entries[key]; ok {
		c.entries[key] = &memoryEntry{data: value, expiresAt: expiresAt}
		c.removeFromOrder(key)
		c.order = append(c.order, key)
		return nil
	}

	// Evict from front if at capacity.
	for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = &memoryEntry{data: value, expiresAt: expiresAt}
	c.order = append(c.order, key)
	return nil
}

// Delete implements Cache.
func (c *Memory) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.removeFromOrder(key)
	}
	return nil
}

// DeletePrefix implements Cache.
func (c *Memory) DeletePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var remaining []string
	for _, key := range c.order {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		} else {
			remaining = append(remaining, key)
		}
	}
	c.order = remaining
	return nil
}

// Close implements Cache.
func (c *Memory) Close() error {
	return nil
}

// Stats returns cache performance statistics.
func (c *Memory) Stats() Stats {
	c.mu.Lock()
	entries := len(c.entries)
	maxEntries := c.maxEntries
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Entries:    entries,
		MaxEntries: maxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate,
	}
}

// removeFromOrder removes a key from the LRU order slice.
func (c *Memory) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
