// Package cache provides the byte cache used for expensive heatmap
// aggregates: leaf resolutions, flat grids, and reported counts.
package cache

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ekballo/heatmap-api/internal/config"
)

// Cache stores serialized aggregates under string keys with per-entry
// TTLs. Get returns (nil, nil) on a miss or expired entry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every key starting with prefix. It backs
	// report-driven invalidation, which cannot enumerate exact keys.
	DeletePrefix(ctx context.Context, prefix string) error
	Close() error
}

// Open creates a Cache for the configured backend.
func Open(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemory(cfg.MaxEntries), nil
	case "redis":
		return NewRedis(cfg.RedisURL)
	}
	return nil, eris.Errorf("cache: unknown backend %q", cfg.Backend)
}
