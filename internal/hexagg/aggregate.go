package hexagg

import (
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
)

// Reducer combines the values of records falling into the same cell.
type Reducer int

const (
	// Sum adds values.
	Sum Reducer = iota
	// Max keeps the largest value.
	Max
	// Count counts records and ignores their values.
	Count
)

func (r Reducer) String() string {
	switch r {
	case Sum:
		return "sum"
	case Max:
		return "max"
	case Count:
		return "count"
	default:
		return "unknown"
	}
}

// ParseReducer parses "sum", "max" or "count".
func ParseReducer(s string) (Reducer, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sum":
		return Sum, nil
	case "max":
		return Max, nil
	case "count":
		return Count, nil
	default:
		return 0, eris.Errorf("hexagg: unknown reducer %q", s)
	}
}

// Record is a value located at a point (lon/lat).
type Record struct {
	Point orb.Point
	Value float64
}

// Aggregate buckets records into cells at res and reduces each bucket.
// Empty input yields an empty map.
func Aggregate(records []Record, res int, r Reducer) (map[Cell]float64, error) {
	if err := ValidateResolution(res); err != nil {
		return nil, err
	}
	if r != Sum && r != Max && r != Count {
		return nil, eris.Errorf("hexagg: unknown reducer %d", int(r))
	}

	out := make(map[Cell]float64)
	for i, rec := range records {
		c, err := CellOf(rec.Point, res)
		if err != nil {
			return nil, eris.Wrapf(err, "hexagg: record %d", i)
		}
		cur, seen := out[c]
		switch r {
		case Sum:
			out[c] = cur + rec.Value
		case Max:
			if !seen || rec.Value > cur {
				out[c] = rec.Value
			}
		case Count:
			out[c] = cur + 1
		}
	}
	return out, nil
}

// CheckResolution verifies that every cell of every map has resolution res.
func CheckResolution(res int, maps ...map[Cell]float64) error {
	if err := ValidateResolution(res); err != nil {
		return err
	}
	for _, m := range maps {
		for c := range m {
			if got := c.Resolution(); got != res {
				return eris.Errorf("hexagg: cell %s has resolution %d, want %d", c, got, res)
			}
		}
	}
	return nil
}

// Union returns the sorted set of cells present in any of the maps.
func Union(maps ...map[Cell]float64) []Cell {
	seen := make(map[Cell]struct{})
	for _, m := range maps {
		for c := range m {
			seen[c] = struct{}{}
		}
	}
	cells := make([]Cell, 0, len(seen))
	for c := range seen {
		cells = append(cells, c)
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i] < cells[j] })
	return cells
}
