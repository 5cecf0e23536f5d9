package saturation

import "github.com/ekballo/heatmap-api/internal/grid"

// LevelStat is one unit's aggregated saturation row at some level.
type LevelStat struct {
	GridID      int64   `json:"grid_id"`
	Name        string  `json:"name,omitempty"`
	CountryCode string  `json:"country_code,omitempty"`
	Population  int64   `json:"population"`
	Needed      int64   `json:"needed"`
	Reported    int64   `json:"reported"`
	Percent     float64 `json:"percent"`
}

// FlatGridByLevel aggregates the leaf set into one row per unit at the
// requested ancestor level. Population and needed are summed over the
// leaves belonging to each ancestor, so targets remain consistent with
// the leaf partition rather than being re-derived from the ancestor's
// own population. LevelWorld collapses everything into a single row.
// Leaves with no ancestor at the level are dropped. Names come from
// the ancestor rows in the index.
func FlatGridByLevel(leaves []grid.Unit, index map[int64]grid.Unit, level grid.Level, divisor int64) map[int64]*LevelStat {
	stats := make(map[int64]*LevelStat)

	if level == grid.LevelWorld {
		world := &LevelStat{GridID: grid.WorldGridID, Name: grid.WorldName}
		for _, leaf := range leaves {
			world.Population += leaf.Population
			world.Needed += Needed(leaf.Population, divisor)
		}
		stats[grid.WorldGridID] = world
		return stats
	}

	for _, leaf := range leaves {
		anc := leaf.AncestorAt(level)
		if anc == nil {
			continue
		}
		stat, ok := stats[*anc]
		if !ok {
			stat = &LevelStat{GridID: *anc}
			if ancestor, found := index[*anc]; found {
				stat.Name = ancestor.Name
				stat.CountryCode = ancestor.CountryCode
			}
			stats[*anc] = stat
		}
		stat.Population += leaf.Population
		stat.Needed += Needed(leaf.Population, divisor)
	}
	return stats
}

// LimitCounts merges raw reported counts into the stats, capping each
// unit's reported at its own needed. The cap is level-local: it uses
// this level's target, never a child level's. Units absent from raw
// report zero. Percent is recomputed from the clamped value.
func LimitCounts(stats map[int64]*LevelStat, raw map[int64]int64) {
	for id, stat := range stats {
		reported := raw[id]
		if reported > stat.Needed {
			reported = stat.Needed
		}
		stat.Reported = reported
		stat.Percent = Percent(reported, stat.Needed)
	}
}
