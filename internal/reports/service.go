package reports

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekballo/heatmap-api/internal/grid"
)

// Invalidator is notified when a tracked record lands, so dependent
// cached aggregates can be dropped.
type Invalidator interface {
	InvalidateReports(ctx context.Context) error
}

// Service implements the new-report submission workflow and serves as
// the reported-count source for the saturation engine.
type Service struct {
	store       Store
	units       grid.Store
	invalidator Invalidator
	postType    string
}

// NewService builds a report Service tracking the given post type.
func NewService(store Store, units grid.Store, invalidator Invalidator, postType string) *Service {
	if postType == "" {
		postType = PostTypeGroups
	}
	return &Service{store: store, units: units, invalidator: invalidator, postType: postType}
}

// CountsByLevel supplies raw reported counts per level. Admin levels
// and world map directly to store groupings; leaf unions the four
// admin levels (a record counts once per ancestor level it carries,
// and grid ids are unique across levels so the union cannot collide);
// full adds the world total to that union.
func (s *Service) CountsByLevel(ctx context.Context, level grid.Level) (map[int64]int64, error) {
	switch level {
	case grid.LevelAdmin0, grid.LevelAdmin1, grid.LevelAdmin2, grid.LevelAdmin3, grid.LevelWorld:
		return s.store.CountsByLevel(ctx, level, s.postType)
	case grid.LevelLeaf:
		return s.unionCounts(ctx, grid.AdminLevels())
	case grid.LevelFull:
		return s.unionCounts(ctx, append(grid.AdminLevels(), grid.LevelWorld))
	}
	return nil, eris.Errorf("reports: uncountable level %q", level)
}

func (s *Service) unionCounts(ctx context.Context, levels []grid.Level) (map[int64]int64, error) {
	results := make([]map[int64]int64, len(levels))
	g, ctx := errgroup.WithContext(ctx)
	for i, level := range levels {
		g.Go(func() error {
			counts, err := s.store.CountsByLevel(ctx, level, s.postType)
			if err != nil {
				return err
			}
			results[i] = counts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[int64]int64)
	for _, counts := range results {
		for id, n := range counts {
			merged[id] += n
		}
	}
	return merged, nil
}

// NewReport validates a public submission, resolves or creates the
// reporting contact, creates one group per list entry, cross-links the
// groups, and fires the record-created event.
func (s *Service) NewReport(ctx context.Context, in *NewReportInput) (*NewReportResult, error) {
	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}

	contactID, err := s.resolveContact(ctx, in)
	if err != nil {
		return nil, err
	}

	groupIDs := make([]string, 0, len(in.List))
	for _, entry := range in.List {
		g := &Group{
			Title:       strings.TrimSpace(entry.Name),
			GridID:      in.GridID,
			MemberCount: entry.Members,
			LeaderCount: 1,
			StartDate:   parseStartDate(entry.Start),
			Status:      GroupStatusActive,
			GroupType:   GroupTypeChurch,
			ContactID:   contactID,
			PostType:    s.postType,
		}
		if g.Title == "" {
			g.Title = in.Name
		}
		if err := s.store.CreateGroup(ctx, g); err != nil {
			return nil, err
		}
		groupIDs = append(groupIDs, g.ID)
	}

	if err := s.store.SetPeerGroups(ctx, groupIDs); err != nil {
		return nil, err
	}

	if err := s.RecordCreated(ctx, s.postType); err != nil {
		// The records are in; a failed invalidation only delays their
		// visibility until the hourly TTL.
		zap.L().Warn("reports: cache invalidation after new report", zap.Error(err))
	}

	zap.L().Info("reports: new report accepted",
		zap.Int64("grid_id", in.GridID),
		zap.Int("groups", len(groupIDs)),
	)
	return &NewReportResult{ContactID: contactID, GroupIDs: groupIDs}, nil
}

// RecordCreated drops cached reported counts when the created record's
// post type is the tracked one. Other post types are ignored.
func (s *Service) RecordCreated(ctx context.Context, postType string) error {
	if postType != s.postType || s.invalidator == nil {
		return nil
	}
	return s.invalidator.InvalidateReports(ctx)
}

func (s *Service) validate(ctx context.Context, in *NewReportInput) error {
	switch {
	case in.GridID == 0:
		return eris.New("reports: missing grid_id")
	case strings.TrimSpace(in.Name) == "":
		return eris.New("reports: missing name")
	case strings.TrimSpace(in.Email) == "":
		return eris.New("reports: missing email")
	case strings.TrimSpace(in.Phone) == "":
		return eris.New("reports: missing phone")
	case len(in.List) == 0:
		return eris.New("reports: empty group list")
	}

	u, err := s.units.GetUnit(ctx, in.GridID)
	if err != nil {
		return eris.Wrap(err, "reports: resolve grid id")
	}
	if u == nil {
		return eris.Errorf("reports: unknown grid id %d", in.GridID)
	}
	return nil
}

func (s *Service) resolveContact(ctx context.Context, in *NewReportInput) (string, error) {
	if in.ContactID != "" {
		c, err := s.store.GetContact(ctx, in.ContactID)
		if err != nil {
			return "", err
		}
		if c == nil {
			return "", eris.Errorf("reports: contact %s not found", in.ContactID)
		}
		return c.ID, nil
	}

	if in.ReturnReporter {
		c, err := s.store.FindActiveContactByEmail(ctx, strings.TrimSpace(in.Email))
		if err != nil {
			return "", err
		}
		if c != nil {
			return c.ID, nil
		}
	}

	c := &Contact{
		Name:   strings.TrimSpace(in.Name),
		Email:  strings.TrimSpace(in.Email),
		Phone:  strings.TrimSpace(in.Phone),
		GridID: in.GridID,
		Status: ContactStatusNew,
	}
	if err := s.store.CreateContact(ctx, c); err != nil {
		return "", err
	}
	return c.ID, nil
}

// parseStartDate accepts a YYYY-MM-DD form value; anything else is
// treated as unset.
func parseStartDate(s string) *time.Time {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &t
}
