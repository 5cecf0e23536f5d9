package grid

import "github.com/rotisserie/eris"

// WorldGridID is the synthetic grid id representing the whole planet.
// It is never stored in the admin_units table.
const WorldGridID int64 = 1

// WorldName is the display name for the synthetic world unit.
const WorldName = "World"

// Level identifies an aggregation level of the admin-geography hierarchy.
type Level string

const (
	// LevelLeaf is the finest-resolution partition of the planet.
	LevelLeaf Level = "leaf"
	// LevelAdmin0 through LevelAdmin3 aggregate leaves by ancestor id.
	LevelAdmin0 Level = "a0"
	LevelAdmin1 Level = "a1"
	LevelAdmin2 Level = "a2"
	LevelAdmin3 Level = "a3"
	// LevelWorld rolls everything up into a single row.
	LevelWorld Level = "world"
	// LevelFull is the union of all levels, used by bulk map loads.
	LevelFull Level = "full"
)

// ParseLevel converts a wire-format level string into a Level.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelLeaf, LevelAdmin0, LevelAdmin1, LevelAdmin2, LevelAdmin3, LevelWorld, LevelFull:
		return Level(s), nil
	}
	return "", eris.Errorf("grid: unknown level %q", s)
}

// AdminLevels returns the four ancestor aggregation levels in order.
func AdminLevels() []Level {
	return []Level{LevelAdmin0, LevelAdmin1, LevelAdmin2, LevelAdmin3}
}

// AncestorColumn returns the admin_units column holding the ancestor id
// for this level, or "" for levels that have no ancestor column.
func (l Level) AncestorColumn() string {
	switch l {
	case LevelAdmin0:
		return "admin0_grid_id"
	case LevelAdmin1:
		return "admin1_grid_id"
	case LevelAdmin2:
		return "admin2_grid_id"
	case LevelAdmin3:
		return "admin3_grid_id"
	}
	return ""
}

// Depth returns the numeric admin depth (0-3) for ancestor levels and
// -1 for leaf, world, and full.
func (l Level) Depth() int {
	switch l {
	case LevelAdmin0:
		return 0
	case LevelAdmin1:
		return 1
	case LevelAdmin2:
		return 2
	case LevelAdmin3:
		return 3
	}
	return -1
}

// Unit is one row of the admin-geography table: a country, province,
// district, or sub-district polygon with its population and ancestry.
type Unit struct {
	GridID       int64   `json:"grid_id"`
	Level        int     `json:"level"`
	Name         string  `json:"name"`
	CountryCode  string  `json:"country_code,omitempty"`
	Population   int64   `json:"population"`
	ParentID     *int64  `json:"parent_id,omitempty"`
	Admin0GridID *int64  `json:"admin0_grid_id,omitempty"`
	Admin1GridID *int64  `json:"admin1_grid_id,omitempty"`
	Admin2GridID *int64  `json:"admin2_grid_id,omitempty"`
	Admin3GridID *int64  `json:"admin3_grid_id,omitempty"`
	Longitude    float64 `json:"longitude"`
	Latitude     float64 `json:"latitude"`
}

// Elements holds the ancestor grid ids of a unit at each admin level.
// A nil entry means the unit sits above that level.
type Elements struct {
	Admin0GridID *int64 `json:"admin0_grid_id"`
	Admin1GridID *int64 `json:"admin1_grid_id"`
	Admin2GridID *int64 `json:"admin2_grid_id"`
	Admin3GridID *int64 `json:"admin3_grid_id"`
}

// Elements returns the unit's ancestor ids. A unit is its own ancestor
// at its own level, so the returned set always includes u.GridID.
func (u *Unit) Elements() Elements {
	e := Elements{
		Admin0GridID: u.Admin0GridID,
		Admin1GridID: u.Admin1GridID,
		Admin2GridID: u.Admin2GridID,
		Admin3GridID: u.Admin3GridID,
	}
	id := u.GridID
	switch u.Level {
	case 0:
		e.Admin0GridID = &id
	case 1:
		e.Admin1GridID = &id
	case 2:
		e.Admin2GridID = &id
	case 3:
		e.Admin3GridID = &id
	}
	return e
}

// AncestorAt returns the unit's ancestor id at the given level, using
// the same self-as-ancestor convention as Elements.
func (u *Unit) AncestorAt(l Level) *int64 {
	e := u.Elements()
	switch l {
	case LevelAdmin0:
		return e.Admin0GridID
	case LevelAdmin1:
		return e.Admin1GridID
	case LevelAdmin2:
		return e.Admin2GridID
	case LevelAdmin3:
		return e.Admin3GridID
	}
	return nil
}
