package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/atm-scoring/internal/model"
)

// MetricsSnapshot holds a point-in-time view of recent city runs.
type MetricsSnapshot struct {
	CitiesTotal    int                 `json:"cities_total"`
	CitiesDone     int                 `json:"cities_done"`
	CitiesFailed   int                 `json:"cities_failed"`
	FailRate       float64             `json:"fail_rate"`
	FailedByStage  map[model.Stage]int `json:"failed_by_stage,omitempty"`
	EmptyGrids     []string            `json:"empty_grids,omitempty"`
	AvgCells       float64             `json:"avg_cells"`
	AvgDurationSec float64             `json:"avg_duration_sec"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RecordQuerier abstracts the run-log methods needed by the collector.
type RecordQuerier interface {
	RecentCityRecords(ctx context.Context, lookbackHours int) ([]model.CityRecord, error)
}

// Collector gathers a snapshot from the run log.
type Collector struct {
	store RecordQuerier
}

// NewCollector creates a new metrics collector.
func NewCollector(st RecordQuerier) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	recs, err := c.store.RecentCityRecords(ctx, lookbackHours)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list city records")
	}
	snap := Summarize(recs)
	snap.LookbackHours = lookbackHours
	return snap, nil
}

// Summarize builds a snapshot from city records.
func Summarize(recs []model.CityRecord) *MetricsSnapshot {
	snap := &MetricsSnapshot{
		CitiesTotal:   len(recs),
		FailedByStage: make(map[model.Stage]int),
		CollectedAt:   time.Now().UTC(),
	}

	var totalCells int
	var totalDuration time.Duration
	for _, r := range recs {
		totalDuration += r.Duration
		if r.Stage != model.StageDone {
			snap.CitiesFailed++
			snap.FailedByStage[r.FailedStage]++
			continue
		}
		snap.CitiesDone++
		totalCells += r.Cells
		if r.Cells == 0 {
			snap.EmptyGrids = append(snap.EmptyGrids, r.City)
		}
	}

	if snap.CitiesTotal > 0 {
		snap.FailRate = float64(snap.CitiesFailed) / float64(snap.CitiesTotal)
		snap.AvgDurationSec = totalDuration.Seconds() / float64(snap.CitiesTotal)
	}
	if snap.CitiesDone > 0 {
		snap.AvgCells = float64(totalCells) / float64(snap.CitiesDone)
	}
	return snap
}
