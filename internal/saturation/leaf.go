package saturation

import "github.com/ekballo/heatmap-api/internal/grid"

// ResolveLeafUnits selects the canonical leaf set from the full unit
// list. The default leaf level is 2; countries without that depth fall
// back to their finest existing level, large countries descend to
// level 3, and subdivided countries stop at level 1. The resulting
// sets are disjoint and together partition every country's territory.
func ResolveLeafUnits(units []grid.Unit, p Policy) []grid.Unit {
	// Parents that actually have children one level down.
	hasL1 := make(map[int64]bool)
	hasL2 := make(map[int64]bool)
	for _, u := range units {
		switch u.Level {
		case 1:
			if u.Admin0GridID != nil {
				hasL1[*u.Admin0GridID] = true
			}
		case 2:
			if u.Admin1GridID != nil {
				hasL2[*u.Admin1GridID] = true
			}
		}
	}

	var leaves []grid.Unit
	for _, u := range units {
		if isLeaf(&u, p, hasL1, hasL2) {
			leaves = append(leaves, u)
		}
	}
	return leaves
}

func isLeaf(u *grid.Unit, p Policy, hasL1, hasL2 map[int64]bool) bool {
	var large, subdivided bool
	if c := u.AncestorAt(grid.LevelAdmin0); c != nil {
		large = p.LargeCountries[*c]
		subdivided = p.SubdividedCountries[*c]
	}

	switch u.Level {
	case 0:
		return !large && !subdivided && !hasL1[u.GridID]
	case 1:
		if large {
			return false
		}
		if subdivided {
			return true
		}
		return !hasL2[u.GridID]
	case 2:
		return !large && !subdivided
	case 3:
		return large && !subdivided
	}
	return false
}
