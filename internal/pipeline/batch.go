package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/atm-scoring/internal/model"
)

// Batch is the outcome of scoring a set of cities.
type Batch struct {
	RunID   string
	Status  model.RunStatus
	Results []model.CityResult // in input order
}

// Failed returns the results of the cities that did not complete.
func (b *Batch) Failed() []model.CityResult {
	var out []model.CityResult
	for _, r := range b.Results {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// RunBatch scores cities with at most concurrency of them in flight. A city
// failure never aborts the batch.
func (r *Runner) RunBatch(ctx context.Context, cities []model.City, concurrency int) *Batch {
	if concurrency < 1 {
		concurrency = 1
	}
	batch := &Batch{
		RunID:   r.startRun(ctx, cities),
		Results: make([]model.CityResult, len(cities)),
	}

	zap.L().Info("processing batch",
		zap.String("run_id", batch.RunID),
		zap.Int("cities", len(cities)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for i, city := range cities {
		g.Go(func() error {
			res := r.runCity(gctx, batch.RunID, city)
			batch.Results[i] = *res

			if r.metrics != nil {
				r.metrics.ObserveCity(res)
			}
			if r.runlog != nil {
				if err := r.runlog.RecordCity(ctx, res.Record(batch.RunID)); err != nil {
					zap.L().Warn("pipeline: failed to record city", zap.String("city", city.Name), zap.Error(err))
				}
			}

			if res.OK() {
				succeeded.Add(1)
			} else {
				failed.Add(1)
			}
			return nil // don't abort batch on individual failure
		})
	}
	_ = g.Wait()

	batch.Status = model.BatchStatus(batch.Results)
	if r.runlog != nil {
		if err := r.runlog.FinishRun(ctx, batch.RunID, batch.Status); err != nil {
			zap.L().Warn("pipeline: failed to finish run", zap.String("run_id", batch.RunID), zap.Error(err))
		}
	}

	zap.L().Info("batch complete",
		zap.String("run_id", batch.RunID),
		zap.String("status", string(batch.Status)),
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return batch
}

// startRun opens a run log entry. Without a run log, or when it cannot be
// written, the batch still gets a fresh id.
func (r *Runner) startRun(ctx context.Context, cities []model.City) string {
	if r.runlog == nil {
		return uuid.NewString()
	}
	names := make([]string, len(cities))
	for i, c := range cities {
		names[i] = c.Name
	}
	run, err := r.runlog.CreateRun(ctx, model.Run{
		AccessMode: string(r.opts.AccessMode),
		Profile:    r.opts.Profile.Version,
		Cities:     names,
	})
	if err != nil {
		zap.L().Warn("pipeline: failed to create run", zap.Error(err))
		return uuid.NewString()
	}
	return run.ID
}
