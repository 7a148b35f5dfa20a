package geospatial

import (
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// SRID of every geometry written to the atm schema.
const SRID = 4326

// EncodePolygon converts an orb polygon (lon/lat rings) to EWKB bytes.
func EncodePolygon(p orb.Polygon) ([]byte, error) {
	if len(p) == 0 {
		return nil, eris.New("geo: encode polygon: empty polygon")
	}
	coords := make([][]geom.Coord, len(p))
	for i, ring := range p {
		if len(ring) < 4 {
			return nil, eris.Errorf("geo: encode polygon: ring %d has %d points", i, len(ring))
		}
		coords[i] = make([]geom.Coord, len(ring))
		for j, pt := range ring {
			coords[i][j] = geom.Coord{pt[0], pt[1]}
		}
	}

	g, err := geom.NewPolygon(geom.XY).SetCoords(coords)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode polygon: set coords")
	}

	data, err := ewkb.Marshal(g.SetSRID(SRID), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode polygon")
	}
	return data, nil
}

// EncodePoint converts an orb point to EWKB bytes.
func EncodePoint(p orb.Point) ([]byte, error) {
	g := geom.NewPointFlat(geom.XY, []float64{p[0], p[1]}).SetSRID(SRID)
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode point")
	}
	return data, nil
}
