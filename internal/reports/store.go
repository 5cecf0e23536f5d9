package reports

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/ekballo/heatmap-api/internal/config"
	"github.com/ekballo/heatmap-api/internal/db"
	"github.com/ekballo/heatmap-api/internal/grid"
)

// Store defines the persistence interface for report records.
type Store interface {
	// CountsByLevel counts records of the given post type grouped by
	// their location's ancestor id at an admin level (a0-a3), or as a
	// single world total. Leaf and full modes are composed above the
	// store from these primitives.
	CountsByLevel(ctx context.Context, level grid.Level, postType string) (map[int64]int64, error)

	// Contacts
	CreateContact(ctx context.Context, c *Contact) error
	GetContact(ctx context.Context, id string) (*Contact, error)
	// FindActiveContactByEmail returns (nil, nil) when no active
	// contact carries the address.
	FindActiveContactByEmail(ctx context.Context, email string) (*Contact, error)

	// Groups
	CreateGroup(ctx context.Context, g *Group) error
	GetGroup(ctx context.Context, id string) (*Group, error)
	// SetPeerGroups cross-links every listed group with the others.
	SetPeerGroups(ctx context.Context, ids []string) error

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
			return nil, eris.Wrap(err, "reports: connect postgres")
		}
		return NewPostgresStore(pool), nil
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath)
	}
	return nil, eris.Errorf("reports: unknown store driver %q", cfg.Driver)
}
