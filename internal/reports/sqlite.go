package reports

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/ekballo/heatmap-api/internal/grid"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens a SQLite database at the given path and
// configures WAL mode.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "reports: sqlite open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "reports: sqlite exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS report_contacts (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	email      TEXT NOT NULL,
	phone      TEXT NOT NULL DEFAULT '',
	grid_id    INTEGER NOT NULL,
	status     TEXT NOT NULL DEFAULT 'new',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS group_reports (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	grid_id      INTEGER NOT NULL,
	member_count INTEGER NOT NULL DEFAULT 0,
	leader_count INTEGER NOT NULL DEFAULT 1,
	start_date   DATETIME,
	status       TEXT NOT NULL DEFAULT 'active',
	group_type   TEXT NOT NULL DEFAULT 'church',
	contact_id   TEXT,
	post_type    TEXT NOT NULL DEFAULT 'groups',
	peer_ids     TEXT NOT NULL DEFAULT '[]',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_report_contacts_email ON report_contacts(email);
CREATE INDEX IF NOT EXISTS idx_group_reports_grid_id ON group_reports(grid_id);
CREATE INDEX IF NOT EXISTS idx_group_reports_post_type ON group_reports(post_type);
`

// Migrate implements Store.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "reports: sqlite migrate")
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CountsByLevel implements Store.
func (s *SQLiteStore) CountsByLevel(ctx context.Context, level grid.Level, postType string) (map[int64]int64, error) {
	if level == grid.LevelWorld {
		var total int64
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM group_reports WHERE post_type = ?`, postType,
		).Scan(&total)
		if err != nil {
			return nil, eris.Wrap(err, "reports: sqlite world count")
		}
		counts := make(map[int64]int64)
		if total > 0 {
			counts[grid.WorldGridID] = total
		}
		return counts, nil
	}

	depth := level.Depth()
	if depth < 0 {
		return nil, eris.Errorf("reports: level %s is not store-countable", level)
	}

	query := fmt.Sprintf(`
		SELECT anc, COUNT(*)
		FROM (
			SELECT CASE WHEN au.level = %d THEN au.grid_id ELSE au.%s END AS anc
			FROM group_reports gr
			JOIN admin_units au ON gr.grid_id = au.grid_id
			WHERE gr.post_type = ?
		) t
		WHERE anc IS NOT NULL
		GROUP BY anc`, depth, level.AncestorColumn())

	rows, err := s.db.QueryContext(ctx, query, postType)
	if err != nil {
		return nil, eris.Wrapf(err, "reports: sqlite counts by %s", level)
	}
	defer rows.Close()

	counts := make(map[int64]int64)
	for rows.Next() {
		var id, count int64
		if err := rows.Scan(&id, &count); err != nil {
			return nil, eris.Wrap(err, "reports: sqlite scan count row")
		}
		counts[id] = count
	}
	return counts, rows.Err()
}

// CreateContact implements Store.
func (s *SQLiteStore) CreateContact(ctx context.Context, c *Contact) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = ContactStatusNew
	}
	c.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO report_contacts (id, name, email, phone, grid_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Email, c.Phone, c.GridID, c.Status, c.CreatedAt,
	)
	return eris.Wrap(err, "reports: sqlite insert contact")
}

// GetContact implements Store.
func (s *SQLiteStore) GetContact(ctx context.Context, id string) (*Contact, error) {
	var c Contact
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, grid_id, status, created_at
		FROM report_contacts WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.GridID, &c.Status, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "reports: sqlite get contact")
	}
	return &c, nil
}

// FindActiveContactByEmail implements Store.
func (s *SQLiteStore) FindActiveContactByEmail(ctx context.Context, email string) (*Contact, error) {
	var c Contact
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, grid_id, status, created_at
		FROM report_contacts
		WHERE email = ? AND status = ?
		ORDER BY created_at
		LIMIT 1`, email, ContactStatusActive,
	).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.GridID, &c.Status, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "reports: sqlite find contact by email")
	}
	return &c, nil
}

// CreateGroup implements Store.
func (s *SQLiteStore) CreateGroup(ctx context.Context, g *Group) error {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	if g.Status == "" {
		g.Status = GroupStatusActive
	}
	if g.GroupType == "" {
		g.GroupType = GroupTypeChurch
	}
	if g.PostType == "" {
		g.PostType = PostTypeGroups
	}
	g.CreatedAt = time.Now().UTC()

	peerIDs := g.PeerIDs
	if peerIDs == nil {
		peerIDs = []string{}
	}
	peers, err := json.Marshal(peerIDs)
	if err != nil {
		return eris.Wrap(err, "reports: marshal peer ids")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO group_reports
			(id, title, grid_id, member_count, leader_count, start_date,
			 status, group_type, contact_id, post_type, peer_ids, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Title, g.GridID, g.MemberCount, g.LeaderCount, g.StartDate,
		g.Status, g.GroupType, g.ContactID, g.PostType, string(peers), g.CreatedAt,
	)
	return eris.Wrap(err, "reports: sqlite insert group")
}

// GetGroup implements Store.
func (s *SQLiteStore) GetGroup(ctx context.Context, id string) (*Group, error) {
	var (
		g     Group
		peers string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, grid_id, member_count, leader_count, start_date,
		       status, group_type, contact_id, post_type, peer_ids, created_at
		FROM group_reports WHERE id = ?`, id,
	).Scan(&g.ID, &g.Title, &g.GridID, &g.MemberCount, &g.LeaderCount, &g.StartDate,
		&g.Status, &g.GroupType, &g.ContactID, &g.PostType, &peers, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "reports: sqlite get group")
	}
	if err := json.Unmarshal([]byte(peers), &g.PeerIDs); err != nil {
		return nil, eris.Wrap(err, "reports: unmarshal peer ids")
	}
	return &g, nil
}

// SetPeerGroups implements Store.
func (s *SQLiteStore) SetPeerGroups(ctx context.Context, ids []string) error {
	if len(ids) < 2 {
		return nil
	}
	for _, id := range ids {
		peers := make([]string, 0, len(ids)-1)
		for _, other := range ids {
			if other != id {
				peers = append(peers, other)
			}
		}
		data, err := json.Marshal(peers)
		if err != nil {
			return eris.Wrap(err, "reports: marshal peer ids")
		}
		if _, err := s.db.ExecContext(ctx,
			`UPDATE group_reports SET peer_ids = ? WHERE id = ?`,
			string(data), id,
		); err != nil {
			return eris.Wrapf(err, "reports: sqlite set peers for %s", id)
		}
	}
	return nil
}
