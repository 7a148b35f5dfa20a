package population

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/atm-scoring/internal/hexagg"
	"github.com/sells-group/atm-scoring/internal/model"
)

// Empirical constants observed across registry releases.
const (
	DefaultImplausibleLiving   = 1000
	DefaultFallbackCoefficient = 2.11
	MinOccupancyCoefficient    = 1.87
	MaxOccupancyCoefficient    = 2.11
	DefaultPerBuilding         = 185
	MinPerBuilding             = 185
	MaxPerBuilding             = 220
)

// RegistryOptions controls the registry-based estimate.
type RegistryOptions struct {
	// ImplausibleLiving is the living count above which a value larger than
	// the registered count is replaced by the registered count.
	ImplausibleLiving float64
	// FallbackCoefficient is used when no parcel carries ground truth.
	FallbackCoefficient float64
	// FixedCoefficient skips calibration and always uses FallbackCoefficient.
	// Legacy behaviour.
	FixedCoefficient bool
	// Dataset names the registry in errors and logs.
	Dataset string
}

// DefaultRegistryOptions returns the standard registry options.
func DefaultRegistryOptions() RegistryOptions {
	return RegistryOptions{
		ImplausibleLiving:   DefaultImplausibleLiving,
		FallbackCoefficient: DefaultFallbackCoefficient,
	}
}

// Validate checks option bounds.
func (o RegistryOptions) Validate() error {
	if o.ImplausibleLiving <= 0 {
		return eris.Errorf("population: implausible living threshold must be positive, got %v", o.ImplausibleLiving)
	}
	if o.FallbackCoefficient < MinOccupancyCoefficient || o.FallbackCoefficient > MaxOccupancyCoefficient {
		return eris.Errorf("population: fallback coefficient %v outside [%v, %v]",
			o.FallbackCoefficient, MinOccupancyCoefficient, MaxOccupancyCoefficient)
	}
	return nil
}

// Repair replaces the living count by the registered count when it is
// missing, or when it exceeds both the implausibility threshold and the
// registered count. It returns a repaired copy and the number of parcels changed.
func Repair(parcels []Parcel, threshold float64) ([]Parcel, int) {
	out := make([]Parcel, len(parcels))
	repaired := 0
	for i, p := range parcels {
		out[i] = p
		if p.Living == nil || (p.Registered != nil && *p.Living > threshold && *p.Living > *p.Registered) {
			if p.Registered == nil {
				continue
			}
			v := *p.Registered
			out[i].Living = &v
			repaired++
		}
	}
	return out, repaired
}

// Calibrate derives the apartment occupancy coefficient as the mean ratio of
// ground-truth inhabitants to living count, rounded to 2 decimals. ok is
// false when no parcel has both a ground truth and a positive living count.
func Calibrate(parcels []Parcel) (coef float64, ok bool) {
	var sum float64
	var n int
	for _, p := range parcels {
		if p.GroundTruth == nil || p.Living == nil || *p.Living <= 0 {
			continue
		}
		sum += *p.GroundTruth / *p.Living
		n++
	}
	if n == 0 {
		return 0, false
	}
	return round2(sum / float64(n)), true
}

// EstimateParcels computes the per-parcel population: living count times the
// occupancy coefficient, missing estimates filled with the mean estimate,
// then the larger of ground truth and estimate, floored to whole persons.
func EstimateParcels(parcels []Parcel, coef float64) []float64 {
	est := make([]float64, len(parcels))
	known := make([]bool, len(parcels))
	var sum float64
	var n int
	for i, p := range parcels {
		if p.Living == nil {
			continue
		}
		est[i] = *p.Living * coef
		known[i] = true
		sum += est[i]
		n++
	}
	var mean float64
	if n > 0 {
		mean = sum / float64(n)
	}

	for i, p := range parcels {
		v := est[i]
		if !known[i] {
			v = mean
		}
		if p.GroundTruth != nil && *p.GroundTruth > v {
			v = *p.GroundTruth
		}
		est[i] = math.Floor(v)
	}
	return est
}

// EstimateRegistry runs the registry-based estimate and sum-aggregates the
// result into cells at res.
func EstimateRegistry(parcels []Parcel, opts RegistryOptions, res int) (map[hexagg.Cell]float64, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("component", "population"), zap.String("dataset", opts.Dataset))

	if len(parcels) == 0 {
		log.Warn("population: registry has no parcels")
		return map[hexagg.Cell]float64{}, nil
	}

	repaired, n := Repair(parcels, opts.ImplausibleLiving)
	if n > 0 {
		log.Debug("population: repaired living counts", zap.Int("parcels", n))
	}

	coef := opts.FallbackCoefficient
	if opts.FixedCoefficient {
		log.Warn("population: using fixed occupancy coefficient (legacy)", zap.Float64("coefficient", coef))
	} else if c, ok := Calibrate(repaired); ok {
		coef = c
		if c < MinOccupancyCoefficient || c > MaxOccupancyCoefficient {
			log.Warn("population: calibrated coefficient outside the usual range",
				zap.Float64("coefficient", c))
		}
	} else {
		log.Info("population: no ground truth, using fallback coefficient", zap.Float64("coefficient", coef))
	}

	values := EstimateParcels(repaired, coef)
	records := make([]hexagg.Record, 0, len(repaired))
	for i, p := range repaired {
		pt, ok := p.Point()
		if !ok {
			return nil, model.NewMalformedInput(opts.Dataset, i, "geometry", eris.New("empty geometry"))
		}
		records = append(records, hexagg.Record{Point: pt, Value: values[i]})
	}

	cells, err := hexagg.Aggregate(records, res, hexagg.Sum)
	if err != nil {
		return nil, eris.Wrap(err, "population: aggregate registry")
	}
	log.Info("population: registry estimate complete",
		zap.Int("parcels", len(repaired)),
		zap.Float64("coefficient", coef),
		zap.Int("cells", len(cells)),
	)
	return cells, nil
}

// EstimateFallback assigns perBuilding residents to every residential
// building and sum-aggregates them into cells at res.
func EstimateFallback(buildings []orb.Point, perBuilding float64, res int) (map[hexagg.Cell]float64, error) {
	if perBuilding < MinPerBuilding || perBuilding > MaxPerBuilding {
		return nil, eris.Errorf("population: residents per building %v outside [%d, %d]",
			perBuilding, MinPerBuilding, MaxPerBuilding)
	}
	if len(buildings) == 0 {
		zap.L().Warn("population: no residential buildings found", zap.String("component", "population"))
	}
	records := make([]hexagg.Record, len(buildings))
	for i, b := range buildings {
		records[i] = hexagg.Record{Point: b, Value: perBuilding}
	}
	cells, err := hexagg.Aggregate(records, res, hexagg.Sum)
	if err != nil {
		return nil, eris.Wrap(err, "population: aggregate buildings")
	}
	return cells, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
