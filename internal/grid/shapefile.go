package grid

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// ParseShapefile reads an admin-boundary shapefile and returns one Unit
// per record. Attribute fields are matched case-insensitively against
// the admin_units column names (grid_id, level, name, country_code,
// population, parent_id, admin0_grid_id .. admin3_grid_id). Records
// without a parseable grid_id are skipped. Each unit's longitude and
// latitude come from the midpoint of its shape's bounding box.
func ParseShapefile(shpPath string) ([]Unit, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "grid: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}

	attr := func(name string) string {
		idx, ok := fieldIdx[name]
		if !ok {
			return ""
		}
		val := strings.TrimRight(reader.Attribute(idx), "\x00")
		return strings.TrimSpace(val)
	}

	var units []Unit
	var skipped int

	for reader.Next() {
		_, shape := reader.Shape()

		gridID, err := strconv.ParseInt(attr("grid_id"), 10, 64)
		if err != nil {
			skipped++
			continue
		}

		u := Unit{
			GridID:      gridID,
			Name:        attr("name"),
			CountryCode: attr("country_code"),
		}
		if lvl, err := strconv.Atoi(attr("level")); err == nil {
			u.Level = lvl
		}
		if pop, err := strconv.ParseInt(attr("population"), 10, 64); err == nil {
			u.Population = pop
		}
		u.ParentID = optionalID(attr("parent_id"))
		u.Admin0GridID = optionalID(attr("admin0_grid_id"))
		u.Admin1GridID = optionalID(attr("admin1_grid_id"))
		u.Admin2GridID = optionalID(attr("admin2_grid_id"))
		u.Admin3GridID = optionalID(attr("admin3_grid_id"))

		if lon, lat, ok := shapeCentroid(shape); ok {
			u.Longitude, u.Latitude = lon, lat
		}

		units = append(units, u)
	}

	if skipped > 0 {
		zap.L().Debug("grid: skipped shapefile records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}

	return units, nil
}

// optionalID parses a reference attribute, treating "" and "0" as absent.
func optionalID(val string) *int64 {
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil || id == 0 {
		return nil
	}
	return &id
}

// shapeCentroid returns the midpoint of the shape's bounding box.
func shapeCentroid(shape shp.Shape) (lon, lat float64, ok bool) {
	switch s := shape.(type) {
	case *shp.Point:
		return s.X, s.Y, true

	case *shp.Polygon:
		g := polygonToMultiPolygon(s)
		if g == nil {
			return 0, 0, false
		}
		return boundsMidpoint(g.Bounds())

	case *shp.PolyLine:
		g := polyLineToMultiLineString(s)
		if g == nil {
			return 0, 0, false
		}
		return boundsMidpoint(g.Bounds())
	}
	return 0, 0, false
}

func boundsMidpoint(b *geom.Bounds) (lon, lat float64, ok bool) {
	if b == nil {
		return 0, 0, false
	}
	return (b.Min(0) + b.Max(0)) / 2, (b.Min(1) + b.Max(1)) / 2, true
}

// polygonToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon.
func polygonToMultiPolygon(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		var end int32
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		} else {
			end = int32(len(p.Points))
		}

		coords := make([]geom.Coord, 0, end-start)
		for j := start; j < end; j++ {
			coords = append(coords, geom.Coord{p.Points[j].X, p.Points[j].Y})
		}

		ring := geom.NewLinearRingFlat(geom.XY, flatCoords(coords))
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("grid: skipping malformed polygon ring", zap.Int32("part", i), zap.Error(err))
			continue
		}

		if err := mp.Push(poly); err != nil {
			zap.L().Debug("grid: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// polyLineToMultiLineString converts a shapefile PolyLine to a geom.MultiLineString.
func polyLineToMultiLineString(pl *shp.PolyLine) geom.T {
	if pl == nil || pl.NumParts == 0 || len(pl.Points) == 0 {
		return nil
	}

	mls := geom.NewMultiLineString(geom.XY).SetSRID(4326)

	for i := int32(0); i < pl.NumParts; i++ {
		start := pl.Parts[i]
		var end int32
		if i+1 < pl.NumParts {
			end = pl.Parts[i+1]
		} else {
			end = int32(len(pl.Points))
		}

		coords := make([]geom.Coord, 0, end-start)
		for j := start; j < end; j++ {
			coords = append(coords, geom.Coord{pl.Points[j].X, pl.Points[j].Y})
		}

		ls := geom.NewLineStringFlat(geom.XY, flatCoords(coords))
		if err := mls.Push(ls); err != nil {
			zap.L().Debug("grid: skipping malformed linestring part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

// flatCoords converts a slice of Coord to flat coordinate pairs for go-geom.
func flatCoords(coords []geom.Coord) []float64 {
	flat := make([]float64, 0, len(coords)*2)
	for _, c := range coords {
		flat = append(flat, c[0], c[1])
	}
	return flat
}
