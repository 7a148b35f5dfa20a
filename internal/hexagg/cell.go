package hexagg

import (
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/uber/h3-go/v4"
)

// MaxResolution is the finest H3 resolution.
const MaxResolution = 15

// DefaultResolution is the scoring grid resolution (about 0.74 km² per cell).
const DefaultResolution = 8

// Cell is an H3 index in its canonical lowercase hexadecimal form.
type Cell string

// String returns the cell id.
func (c Cell) String() string { return string(c) }

// Resolution returns the H3 resolution of the cell, or -1 if the id is invalid.
func (c Cell) Resolution() int {
	h, err := c.h3()
	if err != nil {
		return -1
	}
	return h.Resolution()
}

func (c Cell) h3() (h3.Cell, error) {
	v, err := strconv.ParseUint(string(c), 16, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "hexagg: parse cell %q", string(c))
	}
	h := h3.Cell(v)
	if !h.IsValid() {
		return 0, eris.Errorf("hexagg: invalid cell %q", string(c))
	}
	return h, nil
}

// ParseCell validates s as an H3 cell id and returns it in canonical form.
func ParseCell(s string) (Cell, error) {
	c := Cell(strings.ToLower(strings.TrimSpace(s)))
	h, err := c.h3()
	if err != nil {
		return "", err
	}
	return Cell(h.String()), nil
}

// ValidateResolution returns an error when res is outside 0..15.
func ValidateResolution(res int) error {
	if res < 0 || res > MaxResolution {
		return eris.Errorf("hexagg: resolution %d out of range [0, %d]", res, MaxResolution)
	}
	return nil
}

// CellOf returns the cell containing p at the given resolution.
func CellOf(p orb.Point, res int) (Cell, error) {
	if err := ValidateResolution(res); err != nil {
		return "", err
	}
	lng, lat := p.Lon(), p.Lat()
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return "", eris.Errorf("hexagg: non-finite coordinate (%v, %v)", lng, lat)
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return "", eris.Errorf("hexagg: coordinate out of range (%v, %v)", lng, lat)
	}
	h, err := h3.LatLngToCell(h3.NewLatLng(lat, lng), res)
	if err != nil {
		return "", eris.Wrapf(err, "hexagg: index (%v, %v)", lng, lat)
	}
	return Cell(h.String()), nil
}

// BoundaryOf reconstructs the hexagon (or pentagon) outline of c as a closed
// polygon ring in lon/lat order.
func BoundaryOf(c Cell) (orb.Polygon, error) {
	h, err := c.h3()
	if err != nil {
		return nil, err
	}
	b, err := h.Boundary()
	if err != nil {
		return nil, eris.Wrapf(err, "hexagg: boundary of %s", c)
	}
	ring := make(orb.Ring, 0, len(b)+1)
	for _, ll := range b {
		ring = append(ring, orb.Point{ll.Lng, ll.Lat})
	}
	if len(ring) > 0 {
		ring = append(ring, ring[0])
	}
	return orb.Polygon{ring}, nil
}

// CenterOf returns the center point of c.
func CenterOf(c Cell) (orb.Point, error) {
	h, err := c.h3()
	if err != nil {
		return orb.Point{}, err
	}
	ll, err := h.LatLng()
	if err != nil {
		return orb.Point{}, eris.Wrapf(err, "hexagg: center of %s", c)
	}
	return orb.Point{ll.Lng, ll.Lat}, nil
}
