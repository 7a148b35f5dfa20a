// Package osmread extracts tagged features from OpenStreetMap PBF extracts.
package osmread

import (
	"context"
	"os"
	"runtime"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Feature is a tagged OSM element reduced to a representative point.
type Feature struct {
	ID    string // "node/<id>" or "way/<id>"
	Tags  osm.Tags
	Point orb.Point
}

// Matcher selects elements by their tags.
type Matcher func(osm.Tags) bool

// Source yields the features of an extract that satisfy a matcher.
type Source interface {
	Features(ctx context.Context, path string, match Matcher) ([]Feature, error)
}

// PBFReader reads .osm.pbf files. Nodes and ways are supported; relations
// (multipolygons) are not assembled and are skipped.
type PBFReader struct {
	Procs int
}

// NewPBFReader returns a reader decoding with one goroutine per CPU.
func NewPBFReader() *PBFReader {
	return &PBFReader{Procs: runtime.GOMAXPROCS(-1)}
}

// Features scans path twice: first for matching ways and the node ids they
// reference, then for node coordinates and matching nodes.
func (r *PBFReader) Features(ctx context.Context, path string, match Matcher) ([]Feature, error) {
	c := newCollector(match)

	err := r.scan(ctx, path, func(s *osmpbf.Scanner) {
		s.SkipNodes = true
		s.SkipRelations = true
	}, func(o osm.Object) {
		if w, ok := o.(*osm.Way); ok {
			c.addWay(w)
		}
	})
	if err != nil {
		return nil, eris.Wrap(err, "osmread: scan ways")
	}

	err = r.scan(ctx, path, func(s *osmpbf.Scanner) {
		s.SkipWays = true
		s.SkipRelations = true
	}, func(o osm.Object) {
		if n, ok := o.(*osm.Node); ok {
			c.addNode(n)
		}
	})
	if err != nil {
		return nil, eris.Wrap(err, "osmread: scan nodes")
	}

	features := c.features()
	zap.L().Debug("osmread: extracted features",
		zap.String("path", path),
		zap.Int("features", len(features)),
		zap.Int("unresolved_ways", c.unresolved),
	)
	return features, nil
}

func (r *PBFReader) scan(ctx context.Context, path string, setup func(*osmpbf.Scanner), fn func(osm.Object)) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "osmread: open %s", path)
	}
	defer func() { _ = f.Close() }()

	procs := r.Procs
	if procs <= 0 {
		procs = 1
	}
	s := osmpbf.New(ctx, f, procs)
	defer func() { _ = s.Close() }()
	setup(s)

	for s.Scan() {
		fn(s.Object())
	}
	return s.Err()
}

// collector accumulates matching elements across both passes.
type collector struct {
	match      Matcher
	ways       []*osm.Way
	needed     map[osm.NodeID]struct{}
	coords     map[osm.NodeID]orb.Point
	nodes      []Feature
	unresolved int
}

func newCollector(match Matcher) *collector {
	return &collector{
		match:  match,
		needed: make(map[osm.NodeID]struct{}),
		coords: make(map[osm.NodeID]orb.Point),
	}
}

func (c *collector) addWay(w *osm.Way) {
	if len(w.Tags) == 0 || !c.match(w.Tags) {
		return
	}
	c.ways = append(c.ways, w)
	for _, wn := range w.Nodes {
		c.needed[wn.ID] = struct{}{}
	}
}

func (c *collector) addNode(n *osm.Node) {
	if _, ok := c.needed[n.ID]; ok {
		c.coords[n.ID] = orb.Point{n.Lon, n.Lat}
	}
	if len(n.Tags) > 0 && c.match(n.Tags) {
		c.nodes = append(c.nodes, Feature{
			ID:    n.FeatureID().String(),
			Tags:  n.Tags,
			Point: orb.Point{n.Lon, n.Lat},
		})
	}
}

func (c *collector) features() []Feature {
	out := make([]Feature, 0, len(c.nodes)+len(c.ways))
	out = append(out, c.nodes...)
	for _, w := range c.ways {
		pts := make([]orb.Point, 0, len(w.Nodes))
		for _, wn := range w.Nodes {
			if p, ok := c.coords[wn.ID]; ok {
				pts = append(pts, p)
			}
		}
		p, ok := wayCentroid(pts)
		if !ok {
			c.unresolved++
			continue
		}
		out = append(out, Feature{ID: w.FeatureID().String(), Tags: w.Tags, Point: p})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// wayCentroid returns the area centroid of a closed way, the length-weighted
// centroid of an open one, or the single point of a degenerate way.
func wayCentroid(pts []orb.Point) (orb.Point, bool) {
	switch {
	case len(pts) == 0:
		return orb.Point{}, false
	case len(pts) == 1:
		return pts[0], true
	}
	if len(pts) >= 4 && pts[0] == pts[len(pts)-1] {
		ring := orb.Ring(pts)
		if c, area := planar.CentroidArea(orb.Polygon{ring}); area != 0 {
			return c, true
		}
	}
	c, _ := planar.CentroidArea(orb.LineString(pts))
	return c, true
}
