package grid

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/ekballo/heatmap-api/internal/config"
	"github.com/ekballo/heatmap-api/internal/db"
)

// Store defines the persistence interface for admin-geography units.
type Store interface {
	// ListUnits returns every admin unit. The result is large (tens of
	// thousands of rows) and callers are expected to cache it.
	ListUnits(ctx context.Context) ([]Unit, error)

	// GetUnit returns a single unit by grid id, or (nil, nil) when no
	// such unit exists.
	GetUnit(ctx context.Context, gridID int64) (*Unit, error)

	// PeerCount returns how many units share the given parent at the
	// given admin depth. A nil parentID counts top-level units.
	PeerCount(ctx context.Context, parentID *int64, level int) (int64, error)

	// BulkUpsertUnits inserts or updates units keyed on grid_id and
	// returns the number of rows written.
	BulkUpsertUnits(ctx context.Context, units []Unit) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates a Store for the configured driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "grid: connect postgres")
		}
		return NewPostgresStore(pool), nil
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath)
	}
	return nil, eris.Errorf("grid: unknown store driver %q", cfg.Driver)
}
