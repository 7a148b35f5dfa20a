package geospatial

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/atm-scoring/internal/hexagg"
)

func TestEncodePolygon_HexBoundary(t *testing.T) {
	cell, err := hexagg.CellOf(orb.Point{38.975, 45.035}, 8)
	require.NoError(t, err)
	boundary, err := hexagg.BoundaryOf(cell)
	require.NoError(t, err)

	data, err := EncodePolygon(boundary)
	require.NoError(t, err)

	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	poly, ok := g.(*geom.Polygon)
	require.True(t, ok, "expected polygon, got %T", g)
	assert.Equal(t, SRID, poly.SRID())
	assert.Equal(t, len(boundary[0]), poly.LinearRing(0).NumCoords())
	assert.InDelta(t, boundary[0][0][0], poly.LinearRing(0).Coord(0).X(), 1e-12)
	assert.InDelta(t, boundary[0][0][1], poly.LinearRing(0).Coord(0).Y(), 1e-12)
}

func TestEncodePolygon_Invalid(t *testing.T) {
	_, err := EncodePolygon(nil)
	require.Error(t, err)

	_, err = EncodePolygon(orb.Polygon{{{0, 0}, {1, 1}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ring 0 has 2 points")
}

func TestEncodePoint(t *testing.T) {
	data, err := EncodePoint(orb.Point{39.7, 47.23})
	require.NoError(t, err)

	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	pt, ok := g.(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, SRID, pt.SRID())
	assert.InDelta(t, 39.7, pt.X(), 1e-12)
	assert.InDelta(t, 47.23, pt.Y(), 1e-12)
}
