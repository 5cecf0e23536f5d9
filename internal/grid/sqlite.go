package grid

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs
// single-node deployments and local development.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens a SQLite database at the given path and
// configures WAL mode.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "grid: sqlite open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "grid: sqlite exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS admin_units (
	grid_id        INTEGER PRIMARY KEY,
	level          INTEGER NOT NULL,
	name           TEXT NOT NULL,
	country_code   TEXT NOT NULL DEFAULT '',
	population     INTEGER NOT NULL DEFAULT 0,
	parent_id      INTEGER,
	admin0_grid_id INTEGER,
	admin1_grid_id INTEGER,
	admin2_grid_id INTEGER,
	admin3_grid_id INTEGER,
	longitude      REAL NOT NULL DEFAULT 0,
	latitude       REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_admin_units_level ON admin_units(level);
CREATE INDEX IF NOT EXISTS idx_admin_units_parent_id ON admin_units(parent_id);
`

// Migrate implements Store.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "grid: sqlite migrate")
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteUnit(row rowScanner, u *Unit) error {
	return row.Scan(
		&u.GridID, &u.Level, &u.Name, &u.CountryCode, &u.Population, &u.ParentID,
		&u.Admin0GridID, &u.Admin1GridID, &u.Admin2GridID, &u.Admin3GridID,
		&u.Longitude, &u.Latitude,
	)
}

// ListUnits implements Store.
func (s *SQLiteStore) ListUnits(ctx context.Context) ([]Unit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+unitColumns+` FROM admin_units ORDER BY grid_id`)
	if err != nil {
		return nil, eris.Wrap(err, "grid: sqlite list units")
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		var u Unit
		if err := scanSQLiteUnit(rows, &u); err != nil {
			return nil, eris.Wrap(err, "grid: sqlite scan unit row")
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

// GetUnit implements Store.
func (s *SQLiteStore) GetUnit(ctx context.Context, gridID int64) (*Unit, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+unitColumns+` FROM admin_units WHERE grid_id = ?`, gridID)
	var u Unit
	if err := scanSQLiteUnit(row, &u); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "grid: sqlite get unit")
	}
	return &u, nil
}

// PeerCount implements Store.
func (s *SQLiteStore) PeerCount(ctx context.Context, parentID *int64, level int) (int64, error) {
	var (
		count int64
		err   error
	)
	if parentID == nil {
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM admin_units WHERE parent_id IS NULL AND level = ?`,
			level,
		).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM admin_units WHERE parent_id = ? AND level = ?`,
			*parentID, level,
		).Scan(&count)
	}
	return count, eris.Wrap(err, "grid: sqlite peer count")
}

// BulkUpsertUnits implements Store. SQLite has no COPY protocol, so
// rows go through a single transaction with a prepared upsert.
func (s *SQLiteStore) BulkUpsertUnits(ctx context.Context, units []Unit) (int64, error) {
	if len(units) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "grid: sqlite begin upsert")
	}
	defer tx.Rollback()

	cols := []string{
		"grid_id", "level", "name", "country_code", "population", "parent_id",
		"admin0_grid_id", "admin1_grid_id", "admin2_grid_id", "admin3_grid_id",
		"longitude", "latitude",
	}
	var updates []string
	for _, c := range cols[1:] {
		updates = append(updates, c+" = excluded."+c)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO admin_units (`+strings.Join(cols, ", ")+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (grid_id) DO UPDATE SET `+strings.Join(updates, ", "))
	if err != nil {
		return 0, eris.Wrap(err, "grid: sqlite prepare upsert")
	}
	defer stmt.Close()

	var written int64
	for _, u := range units {
		if _, err := stmt.ExecContext(ctx,
			u.GridID, u.Level, u.Name, u.CountryCode, u.Population, u.ParentID,
			u.Admin0GridID, u.Admin1GridID, u.Admin2GridID, u.Admin3GridID,
			u.Longitude, u.Latitude,
		); err != nil {
			return 0, eris.Wrapf(err, "grid: sqlite upsert unit %d", u.GridID)
		}
		written++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "grid: sqlite commit upsert")
	}
	return written, nil
}
