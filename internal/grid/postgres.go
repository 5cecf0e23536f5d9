package grid

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/ekballo/heatmap-api/internal/db"
)

// PostgresStore implements Store using a Postgres connection pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS admin_units (
	grid_id        BIGINT PRIMARY KEY,
	level          INT NOT NULL,
	name           TEXT NOT NULL,
	country_code   TEXT NOT NULL DEFAULT '',
	population     BIGINT NOT NULL DEFAULT 0,
	parent_id      BIGINT,
	admin0_grid_id BIGINT,
	admin1_grid_id BIGINT,
	admin2_grid_id BIGINT,
	admin3_grid_id BIGINT,
	longitude      DOUBLE PRECISION NOT NULL DEFAULT 0,
	latitude       DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_admin_units_level ON admin_units(level);
CREATE INDEX IF NOT EXISTS idx_admin_units_parent_id ON admin_units(parent_id);
`

// Migrate implements Store.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "grid: migrate")
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const unitColumns = `grid_id, level, name, country_code, population, parent_id,
       admin0_grid_id, admin1_grid_id, admin2_grid_id, admin3_grid_id,
       longitude, latitude`

func scanUnit(row pgx.Row, u *Unit) error {
	return row.Scan(
		&u.GridID, &u.Level, &u.Name, &u.CountryCode, &u.Population, &u.ParentID,
		&u.Admin0GridID, &u.Admin1GridID, &u.Admin2GridID, &u.Admin3GridID,
		&u.Longitude, &u.Latitude,
	)
}

// ListUnits implements Store.
func (s *PostgresStore) ListUnits(ctx context.Context) ([]Unit, error) {
	sql := `SELECT ` + unitColumns + ` FROM admin_units ORDER BY grid_id`
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, eris.Wrap(err, "grid: list units")
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		var u Unit
		if err := scanUnit(rows, &u); err != nil {
			return nil, eris.Wrap(err, "grid: scan unit row")
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

// GetUnit implements Store.
func (s *PostgresStore) GetUnit(ctx context.Context, gridID int64) (*Unit, error) {
	sql := `SELECT ` + unitColumns + ` FROM admin_units WHERE grid_id = $1`
	var u Unit
	if err := scanUnit(s.pool.QueryRow(ctx, sql, gridID), &u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "grid: get unit")
	}
	return &u, nil
}

// PeerCount implements Store.
func (s *PostgresStore) PeerCount(ctx context.Context, parentID *int64, level int) (int64, error) {
	var (
		count int64
		err   error
	)
	if parentID == nil {
		err = s.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM admin_units WHERE parent_id IS NULL AND level = $1`,
			level,
		).Scan(&count)
	} else {
		err = s.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM admin_units WHERE parent_id = $1 AND level = $2`,
			*parentID, level,
		).Scan(&count)
	}
	return count, eris.Wrap(err, "grid: peer count")
}

// BulkUpsertUnits implements Store.
func (s *PostgresStore) BulkUpsertUnits(ctx context.Context, units []Unit) (int64, error) {
	rows := make([][]any, len(units))
	for i, u := range units {
		rows[i] = []any{
			u.GridID, u.Level, u.Name, u.CountryCode, u.Population, u.ParentID,
			u.Admin0GridID, u.Admin1GridID, u.Admin2GridID, u.Admin3GridID,
			u.Longitude, u.Latitude,
		}
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table: "admin_units",
		Columns: []string{
			"grid_id", "level", "name", "country_code", "population", "parent_id",
			"admin0_grid_id", "admin1_grid_id", "admin2_grid_id", "admin3_grid_id",
			"longitude", "latitude",
		},
		ConflictKeys: []string{"grid_id"},
	}, rows)
}
