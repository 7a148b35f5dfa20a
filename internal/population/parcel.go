package population

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Registry column names.
const (
	FieldRegistered  = "RMC"
	FieldLiving      = "RMC_LIVE"
	FieldGroundTruth = "INHAB"
)

// Parcel is one residential record of a housing registry. Counts are nil
// when the registry does not carry them.
type Parcel struct {
	Registered  *float64
	Living      *float64
	GroundTruth *float64
	Geometry    orb.Geometry
}

// Point returns the representative point of the parcel geometry: points are
// used as-is, anything else by its centroid.
func (p Parcel) Point() (orb.Point, bool) {
	return representativePoint(p.Geometry)
}

func representativePoint(g orb.Geometry) (orb.Point, bool) {
	switch v := g.(type) {
	case nil:
		return orb.Point{}, false
	case orb.Point:
		return v, true
	case orb.MultiPoint:
		if len(v) == 0 {
			return orb.Point{}, false
		}
	case orb.Polygon:
		if len(v) == 0 || len(v[0]) == 0 {
			return orb.Point{}, false
		}
	case orb.MultiPolygon:
		if len(v) == 0 {
			return orb.Point{}, false
		}
	}
	c, _ := planar.CentroidArea(g)
	return c, true
}

type column struct {
	name string
	dst  **float64
}

func (p *Parcel) columns() []column {
	return []column{
		{FieldRegistered, &p.Registered},
		{FieldLiving, &p.Living},
		{FieldGroundTruth, &p.GroundTruth},
	}
}
