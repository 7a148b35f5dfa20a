package population

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"

	"github.com/sells-group/atm-scoring/internal/model"
)

func readShapefile(path, dataset string) ([]Parcel, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "population: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fieldIdx := make(map[string]int)
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToUpper(name)] = i
	}

	var parcels []Parcel
	for reader.Next() {
		row, shape := reader.Shape()
		g := shapeToGeometry(shape)
		if g == nil {
			return nil, model.NewMalformedInput(dataset, row, "geometry", eris.New("missing or unsupported geometry"))
		}

		p := Parcel{Geometry: g}
		for _, col := range p.columns() {
			field, dst := col.name, col.dst
			idx, ok := fieldIdx[field]
			if !ok {
				continue
			}
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
			v, err := ParseNumber(val)
			if err != nil {
				return nil, model.NewMalformedInput(dataset, row, field, err)
			}
			*dst = v
		}
		parcels = append(parcels, p)
	}
	if err := reader.Err(); err != nil {
		return nil, model.NewMalformedInput(dataset, len(parcels), "geometry", err)
	}
	return parcels, nil
}

// shapeToGeometry converts point and polygon shapes; other shape types yield nil.
func shapeToGeometry(shape shp.Shape) orb.Geometry {
	switch s := shape.(type) {
	case *shp.Point:
		return orb.Point{s.X, s.Y}
	case *shp.Polygon:
		if s.NumParts == 0 || len(s.Points) == 0 {
			return nil
		}
		var mp orb.MultiPolygon
		for i := int32(0); i < s.NumParts; i++ {
			start := s.Parts[i]
			end := int32(len(s.Points))
			if i+1 < s.NumParts {
				end = s.Parts[i+1]
			}
			ring := make(orb.Ring, 0, end-start)
			for j := start; j < end; j++ {
				ring = append(ring, orb.Point{s.Points[j].X, s.Points[j].Y})
			}
			mp = append(mp, orb.Polygon{ring})
		}
		if len(mp) == 1 {
			return mp[0]
		}
		return mp
	default:
		return nil
	}
}
