package population

import (
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"

	"github.com/sells-group/atm-scoring/internal/fetcher"
	"github.com/sells-group/atm-scoring/internal/model"
)

// Coordinate column aliases accepted in point tables.
var (
	lonColumns = []string{"lon", "lng", "longitude", "x"}
	latColumns = []string{"lat", "latitude", "y"}
)

// ParseTable converts a point table into parcels. Rows are located by their
// lon/lat columns; registry counts use the same column names as the GeoJSON
// and shapefile layouts. Row numbers in errors are zero-based data rows.
func ParseTable(tbl *fetcher.Table, dataset string) ([]Parcel, error) {
	lonIdx, latIdx := tbl.Column(lonColumns...), tbl.Column(latColumns...)
	if lonIdx < 0 || latIdx < 0 {
		return nil, model.NewMalformedInput(dataset, -1, "", eris.New("table has no lon/lat columns"))
	}

	parcels := make([]Parcel, 0, len(tbl.Rows))
	for i, row := range tbl.Rows {
		lon, err := coordinate(row, lonIdx, -180, 180)
		if err != nil {
			return nil, model.NewMalformedInput(dataset, i, tbl.Header[lonIdx], err)
		}
		lat, err := coordinate(row, latIdx, -90, 90)
		if err != nil {
			return nil, model.NewMalformedInput(dataset, i, tbl.Header[latIdx], err)
		}

		p := Parcel{Geometry: orb.Point{lon, lat}}
		for _, col := range p.columns() {
			idx := tbl.Column(col.name)
			if idx < 0 {
				continue
			}
			v, err := ParseNumber(fetcher.Cell(row, idx))
			if err != nil {
				return nil, model.NewMalformedInput(dataset, i, col.name, err)
			}
			*col.dst = v
		}
		parcels = append(parcels, p)
	}
	return parcels, nil
}

func coordinate(row []string, idx int, lo, hi float64) (float64, error) {
	v, err := ParseNumber(fetcher.Cell(row, idx))
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, eris.New("missing coordinate")
	}
	if *v < lo || *v > hi {
		return 0, eris.Errorf("coordinate %g out of range", *v)
	}
	return *v, nil
}
