package osmread

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shops(tags osm.Tags) bool {
	return tags.Find("shop") != ""
}

func TestCollectorNodesAndWays(t *testing.T) {
	t.Parallel()

	c := newCollector(shops)

	// pass 1: ways
	c.addWay(&osm.Way{
		ID:   10,
		Tags: osm.Tags{{Key: "shop", Value: "mall"}},
		Nodes: osm.WayNodes{
			{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}, {ID: 1},
		},
	})
	c.addWay(&osm.Way{ID: 11, Tags: osm.Tags{{Key: "highway", Value: "primary"}}, Nodes: osm.WayNodes{{ID: 1}, {ID: 2}}})
	c.addWay(&osm.Way{ID: 12, Tags: osm.Tags{{Key: "shop", Value: "kiosk"}}, Nodes: osm.WayNodes{{ID: 99}}})

	// pass 2: nodes
	c.addNode(&osm.Node{ID: 1, Lon: 0, Lat: 0})
	c.addNode(&osm.Node{ID: 2, Lon: 2, Lat: 0})
	c.addNode(&osm.Node{ID: 3, Lon: 2, Lat: 2})
	c.addNode(&osm.Node{ID: 4, Lon: 0, Lat: 2})
	c.addNode(&osm.Node{ID: 5, Lon: 5, Lat: 6, Tags: osm.Tags{{Key: "shop", Value: "supermarket"}}})
	c.addNode(&osm.Node{ID: 6, Lon: 7, Lat: 8, Tags: osm.Tags{{Key: "amenity", Value: "bench"}}})

	got := c.features()
	require.Len(t, got, 2)

	assert.Equal(t, "node/5", got[0].ID)
	assert.Equal(t, orb.Point{5, 6}, got[0].Point)
	assert.Equal(t, "supermarket", got[0].Tags.Find("shop"))

	assert.Equal(t, "way/10", got[1].ID)
	assert.InDelta(t, 1, got[1].Point.Lon(), 1e-9)
	assert.InDelta(t, 1, got[1].Point.Lat(), 1e-9)

	assert.Equal(t, 1, c.unresolved, "way 12 references an unknown node")
}

func TestWayCentroid(t *testing.T) {
	t.Parallel()

	_, ok := wayCentroid(nil)
	assert.False(t, ok)

	p, ok := wayCentroid([]orb.Point{{3, 4}})
	require.True(t, ok)
	assert.Equal(t, orb.Point{3, 4}, p)

	p, ok = wayCentroid([]orb.Point{{0, 0}, {4, 0}})
	require.True(t, ok)
	assert.InDelta(t, 2, p.Lon(), 1e-9)
	assert.InDelta(t, 0, p.Lat(), 1e-9)
}

func TestFeaturesMissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewPBFReader().Features(context.Background(), filepath.Join(t.TempDir(), "none.osm.pbf"), shops)
	assert.Error(t, err)
}
