package scorer

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"

	"github.com/sells-group/atm-scoring/internal/hexagg"
)

// Signals are the per-cell inputs of the compositor, all at one resolution.
type Signals struct {
	Placement  map[hexagg.Cell]float64 // max placement tier
	Population map[hexagg.Cell]float64 // estimated residents
	POIs       map[hexagg.Cell]float64 // POI count
}

// ScoredCell is one hex cell with its weighted components and final score.
type ScoredCell struct {
	Cell       hexagg.Cell
	Boundary   orb.Polygon
	AccessMode AccessMode

	Placement  float64
	Access     float64
	Population float64
	POIs       float64

	RawPlacement  float64
	RawPopulation float64
	RawPOIs       float64

	LocationScore float64
}

// Compose outer-joins the signals on cell id (missing values count as 0) and
// scores every cell. Cells are returned in id order.
func Compose(sig Signals, mode AccessMode, p Profile) ([]ScoredCell, error) {
	access, err := p.AccessScore(mode)
	if err != nil {
		return nil, err
	}
	if err := checkSameResolution(sig.Placement, sig.Population, sig.POIs); err != nil {
		return nil, err
	}

	cells := hexagg.Union(sig.Placement, sig.Population, sig.POIs)
	out := make([]ScoredCell, 0, len(cells))
	for _, c := range cells {
		boundary, err := hexagg.BoundaryOf(c)
		if err != nil {
			return nil, eris.Wrap(err, "scorer: cell boundary")
		}
		sc := ScoredCell{
			Cell:          c,
			Boundary:      boundary,
			AccessMode:    mode,
			RawPlacement:  nonNegative(sig.Placement[c]),
			RawPopulation: nonNegative(sig.Population[c]),
			RawPOIs:       nonNegative(sig.POIs[c]),
		}
		sc.Placement = math.Min(sc.RawPlacement, p.Cap) * p.Weights.Placement
		sc.Access = math.Min(access, p.Cap) * p.Weights.AccessMode
		sc.Population = math.Min(sc.RawPopulation*p.PopulationFactor, p.Cap) * p.Weights.Population
		sc.POIs = math.Min(sc.RawPOIs*p.POIFactor, p.Cap) * p.Weights.POIs
		sc.LocationScore = total(sc)
		out = append(out, sc)
	}
	return out, nil
}

// Rescore recomputes the access component and final score of a persisted
// cell for another access mode.
func Rescore(sc ScoredCell, mode AccessMode, p Profile) (ScoredCell, error) {
	access, err := p.AccessScore(mode)
	if err != nil {
		return sc, err
	}
	sc.AccessMode = mode
	sc.Access = math.Min(access, p.Cap) * p.Weights.AccessMode
	sc.LocationScore = total(sc)
	return sc, nil
}

func total(sc ScoredCell) float64 {
	return round2(sc.Placement + sc.Access + sc.Population + sc.POIs)
}

func checkSameResolution(maps ...map[hexagg.Cell]float64) error {
	for _, m := range maps {
		for c := range m {
			return hexagg.CheckResolution(c.Resolution(), maps...)
		}
	}
	return nil
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
