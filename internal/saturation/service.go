package saturation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ekballo/heatmap-api/internal/cache"
	"github.com/ekballo/heatmap-api/internal/grid"
)

// Cache keys. Leaf and flat-grid aggregates follow the geography
// table, which changes on a monthly cadence at most; reported counts
// follow live report traffic and additionally get invalidated on every
// new report.
const (
	leafUnitsKey        = "leaf_units"
	reportedCountsScope = "reported_counts:"

	geographyTTL = 30 * 24 * time.Hour
	reportedTTL  = time.Hour
)

func flatGridKey(level grid.Level, divisor int64) string {
	return fmt.Sprintf("flat_grid:%s:%d", level, divisor)
}

func reportedCountsKey(level grid.Level) string {
	return reportedCountsScope + string(level)
}

// Counter supplies raw reported-group counts per level. Counts are
// derived independently at each level from the records' own ancestor
// ids, never by rolling up leaf results.
type Counter interface {
	CountsByLevel(ctx context.Context, level grid.Level) (map[int64]int64, error)
}

// Service answers the drill-down queries behind the heatmap endpoints.
// It is stateless apart from the injected cache.
type Service struct {
	store  grid.Store
	counts Counter
	cache  cache.Cache
	policy Policy
}

// NewService validates the policy and builds a Service.
func NewService(store grid.Store, counts Counter, c cache.Cache, policy Policy) (*Service, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Service{store: store, counts: counts, cache: c, policy: policy}, nil
}

// Policy returns the service's effective policy.
func (s *Service) Policy() Policy {
	return s.policy
}

// SelfDetail describes one unit for the drill-down sidebar.
type SelfDetail struct {
	GridID             int64  `json:"grid_id"`
	Name               string `json:"name"`
	ParentName         string `json:"parent_name,omitempty"`
	Level              int    `json:"level"`
	ParentLevel        int    `json:"parent_level"`
	Population         int64  `json:"population"`
	PopulationDivision int64  `json:"population_division"`
	Needed             int64  `json:"needed"`
	Peers              int64  `json:"peers"`
}

// GridData is the full flat leaf map for choropleth coloring.
type GridData struct {
	Data         map[int64]*LevelStat `json:"data"`
	HighestValue int64                `json:"highest_value"`
	Count        int                  `json:"count"`
}

// GetSelf returns one unit's stats plus its parent name and the count
// of units sharing its parent.
func (s *Service) GetSelf(ctx context.Context, gridID, divisor int64) (*SelfDetail, error) {
	u, err := s.store.GetUnit(ctx, gridID)
	if err != nil {
		return nil, eris.Wrap(err, "saturation: get self unit")
	}
	if u == nil {
		return nil, eris.Errorf("saturation: grid id %d not found", gridID)
	}

	detail := &SelfDetail{
		GridID:             u.GridID,
		Name:               u.Name,
		Level:              u.Level,
		ParentLevel:        u.Level - 1,
		Population:         u.Population,
		PopulationDivision: divisor,
		Needed:             Needed(u.Population, divisor),
	}

	if u.ParentID != nil {
		parent, err := s.store.GetUnit(ctx, *u.ParentID)
		if err != nil {
			return nil, eris.Wrap(err, "saturation: get parent unit")
		}
		if parent != nil {
			detail.ParentName = parent.Name
		}
	}

	peers, err := s.store.PeerCount(ctx, u.ParentID, u.Level)
	if err != nil {
		return nil, eris.Wrap(err, "saturation: count peers")
	}
	detail.Peers = peers

	return detail, nil
}

// GetLevel resolves gridID's ancestor at the requested level and
// returns that ancestor's clamped stat. The second return value is
// false when the unit, its ancestor, or the ancestor's name is absent:
// expected no-data outcomes at fringe levels, not errors.
func (s *Service) GetLevel(ctx context.Context, gridID int64, level grid.Level, divisor int64) (*LevelStat, bool, error) {
	u, err := s.store.GetUnit(ctx, gridID)
	if err != nil {
		return nil, false, eris.Wrap(err, "saturation: get level unit")
	}
	if u == nil {
		return nil, false, nil
	}

	var ancestorID int64
	if level == grid.LevelWorld {
		ancestorID = grid.WorldGridID
	} else {
		anc := u.AncestorAt(level)
		if anc == nil {
			return nil, false, nil
		}
		ancestorID = *anc
	}

	stats, err := s.flatGrid(ctx, level, divisor)
	if err != nil {
		return nil, false, err
	}
	raw, err := s.reportedCounts(ctx, level)
	if err != nil {
		return nil, false, err
	}
	LimitCounts(stats, raw)

	stat, ok := stats[ancestorID]
	if !ok || stat.Name == "" {
		return nil, false, nil
	}
	return stat, true, nil
}

// GetGridData returns the clamped stat for every leaf unit, plus the
// highest raw reported count observed (minimum 1) for client-side
// color normalization.
func (s *Service) GetGridData(ctx context.Context) (*GridData, error) {
	leaves, err := s.leafUnits(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := s.reportedCounts(ctx, grid.LevelLeaf)
	if err != nil {
		return nil, err
	}

	data := make(map[int64]*LevelStat, len(leaves))
	highest := int64(1)
	for _, leaf := range leaves {
		needed := Needed(leaf.Population, s.policy.DivisorFor(leaf.CountryCode))
		reported := raw[leaf.GridID]
		if reported > highest {
			highest = reported
		}
		clamped := reported
		if clamped > needed {
			clamped = needed
		}
		data[leaf.GridID] = &LevelStat{
			GridID:     leaf.GridID,
			Name:       leaf.Name,
			Population: leaf.Population,
			Needed:     needed,
			Reported:   clamped,
			Percent:    Percent(clamped, needed),
		}
	}

	return &GridData{Data: data, HighestValue: highest, Count: len(data)}, nil
}

// InvalidateReports drops every cached reported-count aggregate. Leaf
// and flat-grid entries are untouched: geography does not change when
// a report lands.
func (s *Service) InvalidateReports(ctx context.Context) error {
	err := s.cache.DeletePrefix(ctx, reportedCountsScope)
	return eris.Wrap(err, "saturation: invalidate reported counts")
}

func (s *Service) leafUnits(ctx context.Context) ([]grid.Unit, error) {
	var leaves []grid.Unit
	if hit, err := s.cached(ctx, leafUnitsKey, &leaves); err != nil {
		return nil, err
	} else if hit {
		return leaves, nil
	}

	units, err := s.store.ListUnits(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "saturation: list units")
	}
	leaves = ResolveLeafUnits(units, s.policy)
	s.put(ctx, leafUnitsKey, leaves, geographyTTL)
	return leaves, nil
}

func (s *Service) flatGrid(ctx context.Context, level grid.Level, divisor int64) (map[int64]*LevelStat, error) {
	key := flatGridKey(level, divisor)

	stats := make(map[int64]*LevelStat)
	if hit, err := s.cached(ctx, key, &stats); err != nil {
		return nil, err
	} else if hit {
		return stats, nil
	}

	units, err := s.store.ListUnits(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "saturation: list units")
	}
	index := make(map[int64]grid.Unit, len(units))
	for _, u := range units {
		index[u.GridID] = u
	}
	leaves := ResolveLeafUnits(units, s.policy)

	stats = FlatGridByLevel(leaves, index, level, divisor)
	s.put(ctx, key, stats, geographyTTL)
	return stats, nil
}

func (s *Service) reportedCounts(ctx context.Context, level grid.Level) (map[int64]int64, error) {
	key := reportedCountsKey(level)

	counts := make(map[int64]int64)
	if hit, err := s.cached(ctx, key, &counts); err != nil {
		return nil, err
	} else if hit {
		return counts, nil
	}

	counts, err := s.counts.CountsByLevel(ctx, level)
	if err != nil {
		return nil, eris.Wrap(err, "saturation: reported counts")
	}
	s.put(ctx, key, counts, reportedTTL)
	return counts, nil
}

// cached loads a JSON cache entry into out. A corrupt entry is dropped
// and treated as a miss.
func (s *Service) cached(ctx context.Context, key string, out any) (bool, error) {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		return false, eris.Wrapf(err, "saturation: cache get %s", key)
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		zap.L().Warn("saturation: dropping corrupt cache entry",
			zap.String("key", key), zap.Error(err))
		_ = s.cache.Delete(ctx, key)
		return false, nil
	}
	return true, nil
}

// put stores a JSON cache entry best-effort: a cache write failure
// degrades performance, not correctness.
func (s *Service) put(ctx context.Context, key string, val any, ttl time.Duration) {
	data, err := json.Marshal(val)
	if err != nil {
		zap.L().Warn("saturation: marshal cache entry", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, key, data, ttl); err != nil {
		zap.L().Warn("saturation: cache set", zap.String("key", key), zap.Error(err))
	}
}
