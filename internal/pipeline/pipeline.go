// Package pipeline runs the per-city scoring workflow: acquire the OSM
// inputs, estimate population and extract POIs in parallel, merge and score
// the signals, then persist the artifact.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/atm-scoring/internal/geospatial"
	"github.com/sells-group/atm-scoring/internal/hexagg"
	"github.com/sells-group/atm-scoring/internal/model"
	"github.com/sells-group/atm-scoring/internal/monitoring"
	"github.com/sells-group/atm-scoring/internal/objstore"
	"github.com/sells-group/atm-scoring/internal/osmread"
	"github.com/sells-group/atm-scoring/internal/poi"
	"github.com/sells-group/atm-scoring/internal/population"
	"github.com/sells-group/atm-scoring/internal/resilience"
	"github.com/sells-group/atm-scoring/internal/scorer"
	"github.com/sells-group/atm-scoring/internal/source"
	"github.com/sells-group/atm-scoring/internal/store"
)

// Options are the constants of a run, passed explicitly to every stage.
type Options struct {
	Resolution           int
	AccessMode           scorer.AccessMode
	Profile              scorer.Profile
	Population           population.RegistryOptions
	ResidentsPerBuilding float64
	TagFilterKey         string
	Retry                resilience.RetryConfig
	Layout               source.Layout
}

// Runner scores cities. The exporter, run log and metrics are optional.
type Runner struct {
	acquirer source.Acquirer
	objects  objstore.Store
	features osmread.Source
	opts     Options

	exporter geospatial.Store
	runlog   store.Store
	metrics  *monitoring.Metrics
}

// New creates a Runner.
func New(acq source.Acquirer, objects objstore.Store, features osmread.Source, opts Options) *Runner {
	if opts.Resolution == 0 {
		opts.Resolution = hexagg.DefaultResolution
	}
	if opts.ResidentsPerBuilding == 0 {
		opts.ResidentsPerBuilding = population.DefaultPerBuilding
	}
	if opts.TagFilterKey == "" {
		opts.TagFilterKey = DefaultTagFilterKey
	}
	return &Runner{
		acquirer: acq,
		objects:  objects,
		features: features,
		opts:     opts,
	}
}

// DefaultTagFilterKey is the object key of the tag filter document.
const DefaultTagFilterKey = "osm_tags_filter.json"

// WithExporter publishes every scored city to PostGIS.
func (r *Runner) WithExporter(e geospatial.Store) *Runner {
	r.exporter = e
	return r
}

// WithRunLog records batches and city outcomes.
func (r *Runner) WithRunLog(s store.Store) *Runner {
	r.runlog = s
	return r
}

// WithMetrics records city outcomes and score distributions.
func (r *Runner) WithMetrics(m *monitoring.Metrics) *Runner {
	r.metrics = m
	return r
}

// stageError tags an error with the stage it failed in.
type stageError struct {
	stage model.Stage
	err   error
}

func (e *stageError) Error() string { return string(e.stage) + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// RunCity runs the workflow for one city. It never returns nil; failures are
// reported in the result with the stage that failed.
func (r *Runner) RunCity(ctx context.Context, city model.City) *model.CityResult {
	return r.runCity(ctx, "", city)
}

func (r *Runner) runCity(ctx context.Context, runID string, city model.City) *model.CityResult {
	log := zap.L().With(zap.String("city", city.Name), zap.String("run_id", runID))
	log.Info("pipeline: starting city")

	result := &model.CityResult{City: city, StartedAt: time.Now()}
	res := r.opts.Resolution

	var mu sync.Mutex
	warn := func(msg string) {
		log.Warn("pipeline: " + msg)
		mu.Lock()
		result.Warnings = append(result.Warnings, msg)
		mu.Unlock()
	}

	// Stage tracking helper, safe for the parallel branches.
	trackStage := func(stage model.Stage, fn func(sr *model.StageResult) error) error {
		sr := model.StageResult{Stage: stage}
		start := time.Now()
		err := fn(&sr)
		sr.Duration = time.Since(start)

		if err != nil {
			sr.Error = err.Error()
			log.Error("pipeline: stage failed",
				zap.String("stage", string(stage)),
				zap.Int64("duration_ms", sr.Duration.Milliseconds()),
				zap.Error(err),
			)
			err = &stageError{stage: stage, err: err}
		} else {
			log.Info("pipeline: stage complete",
				zap.String("stage", string(stage)),
				zap.Int64("duration_ms", sr.Duration.Milliseconds()),
			)
		}

		mu.Lock()
		result.Stages = append(result.Stages, sr)
		if err == nil {
			result.Stage = stage
		}
		mu.Unlock()
		return err
	}

	finish := func(err error) *model.CityResult {
		result.Duration = time.Since(result.StartedAt)
		if err != nil {
			result.Err = err
			result.Stage = model.StageFailed
			var se *stageError
			if errors.As(err, &se) {
				result.FailedStage = se.stage
			}
			log.Error("pipeline: city failed",
				zap.String("failed_stage", string(result.FailedStage)),
				zap.Duration("duration", result.Duration),
				zap.Error(err),
			)
			return result
		}
		result.Stage = model.StageDone
		log.Info("pipeline: city complete",
			zap.Int("cells", result.Cells),
			zap.String("artifact", result.ArtifactKey),
			zap.Duration("duration", result.Duration),
		)
		return result
	}

	// ===== Acquisition =====
	var dump, extract, poiExtract string

	err := trackStage(model.StageFetchSource, func(sr *model.StageResult) error {
		retry := r.opts.Retry
		retry.OnRetry = resilience.RetryLogger(city.Name, "fetch_region")
		path, fetchErr := resilience.DoVal(ctx, retry, func(ctx context.Context) (string, error) {
			sr.Attempts++
			return r.acquirer.FetchRegion(ctx, city.Region)
		})
		dump = path
		return fetchErr
	})
	if err != nil {
		return finish(err)
	}

	err = trackStage(model.StageExtractCity, func(*model.StageResult) error {
		path, extractErr := r.acquirer.ExtractCity(ctx, dump, city)
		extract = path
		return extractErr
	})
	if err != nil {
		return finish(err)
	}

	err = trackStage(model.StageFilterTags, func(*model.StageResult) error {
		if dlErr := r.objects.Download(ctx, r.opts.TagFilterKey, r.tagFilterPath(city)); dlErr != nil {
			return eris.Wrapf(dlErr, "pipeline: download tag filter %s", r.opts.TagFilterKey)
		}
		path, filterErr := r.acquirer.FilterByTags(ctx, extract, city)
		poiExtract = path
		return filterErr
	})
	if err != nil {
		return finish(err)
	}

	// ===== Population ∥ POI =====
	var (
		residents map[hexagg.Cell]float64
		pois      []poi.POI
		placement map[hexagg.Cell]float64
		density   map[hexagg.Cell]float64
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return trackStage(model.StagePopulation, func(*model.StageResult) error {
			est, popErr := r.estimatePopulation(gCtx, city, extract)
			residents = est
			return popErr
		})
	})
	g.Go(func() error {
		return trackStage(model.StagePOI, func(*model.StageResult) error {
			found, pl, dn, poiErr := r.extractPOIs(gCtx, city, poiExtract)
			pois, placement, density = found, pl, dn
			return poiErr
		})
	})
	if err := g.Wait(); err != nil {
		return finish(err)
	}

	if len(residents) == 0 {
		warn("no residents estimated, population component is zero")
	}
	if len(pois) == 0 {
		warn("no points of interest found, placement and poi components are zero")
	}

	// ===== Merge, score, persist =====
	var signals scorer.Signals
	err = trackStage(model.StageMerge, func(*model.StageResult) error {
		if resErr := hexagg.CheckResolution(res, residents, placement, density); resErr != nil {
			return resErr
		}
		signals = scorer.Signals{Placement: placement, Population: residents, POIs: density}
		return nil
	})
	if err != nil {
		return finish(err)
	}

	var cells []scorer.ScoredCell
	err = trackStage(model.StageScore, func(*model.StageResult) error {
		scored, scoreErr := scorer.Compose(signals, r.opts.AccessMode, r.opts.Profile)
		cells = scored
		return scoreErr
	})
	if err != nil {
		return finish(err)
	}
	result.Cells = len(cells)
	if len(cells) == 0 {
		warn("no cells scored, artifact is empty")
	}

	err = trackStage(model.StagePersist, func(*model.StageResult) error {
		key, persistErr := r.persist(ctx, runID, city, cells, pois)
		result.ArtifactKey = key
		return persistErr
	})
	if err != nil {
		return finish(err)
	}

	return finish(nil)
}
