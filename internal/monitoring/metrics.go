package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"

	"github.com/sells-group/atm-scoring/internal/model"
)

const namespace = "atm"

// Metrics holds the counters and histograms recorded during a batch run.
// Each Metrics owns its registry so batch runs and tests never share state.
type Metrics struct {
	registry *prometheus.Registry

	CityRuns      *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	FetchRetries  *prometheus.CounterVec
	CellsScored   *prometheus.GaugeVec
	LocationScore *prometheus.HistogramVec
	Warnings      *prometheus.CounterVec
}

// NewMetrics creates and registers the pipeline metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CityRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "city_runs_total",
			Help:      "City runs by outcome and terminal stage.",
		}, []string{"city", "status", "stage"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each workflow stage.",
			Buckets:   []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"stage"}),
		FetchRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "fetch_retries_total",
			Help:      "Retried region fetch attempts.",
		}, []string{"city"}),
		CellsScored: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scorer",
			Name:      "cells",
			Help:      "Number of scored cells in the last artifact per city.",
		}, []string{"city"}),
		LocationScore: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scorer",
			Name:      "location_score",
			Help:      "Distribution of per-cell location scores.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}, []string{"city"}),
		Warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "warnings_total",
			Help:      "Soft warnings raised while scoring.",
		}, []string{"city"}),
	}
	m.registry.MustRegister(m.CityRuns, m.StageDuration, m.FetchRetries, m.CellsScored, m.LocationScore, m.Warnings)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveCity records the outcome of one city run.
func (m *Metrics) ObserveCity(res *model.CityResult) {
	status := "ok"
	stage := res.Stage
	if !res.OK() {
		status = "failed"
		stage = res.FailedStage
	}
	m.CityRuns.WithLabelValues(res.City.Name, status, string(stage)).Inc()
	for _, s := range res.Stages {
		m.StageDuration.WithLabelValues(string(s.Stage)).Observe(s.Duration.Seconds())
		if s.Stage == model.StageFetchSource && s.Attempts > 1 {
			m.FetchRetries.WithLabelValues(res.City.Name).Add(float64(s.Attempts - 1))
		}
	}
	if len(res.Warnings) > 0 {
		m.Warnings.WithLabelValues(res.City.Name).Add(float64(len(res.Warnings)))
	}
	if res.OK() {
		m.CellsScored.WithLabelValues(res.City.Name).Set(float64(res.Cells))
	}
}

// ObserveScores records the location score distribution for a city.
func (m *Metrics) ObserveScores(city string, scores []float64) {
	h := m.LocationScore.WithLabelValues(city)
	for _, s := range scores {
		h.Observe(s)
	}
}

// WriteTextfile writes the registry in the node_exporter textfile format.
// An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return eris.Wrapf(err, "monitoring: write textfile %s", path)
	}
	return nil
}
