package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/atm-scoring/internal/geospatial"
	"github.com/sells-group/atm-scoring/internal/model"
	"github.com/sells-group/atm-scoring/internal/monitoring"
	"github.com/sells-group/atm-scoring/internal/osmread"
	"github.com/sells-group/atm-scoring/internal/pipeline"
	"github.com/sells-group/atm-scoring/internal/scorer"
)

var runCmd = &cobra.Command{
	Use:          "run",
	Short:        "Score cities and publish their artifacts",
	Long:         "Runs the scoring workflow for every configured city (or the ones given with --city) and uploads one GeoJSON artifact per city. Exits non-zero when any city failed.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		names, _ := cmd.Flags().GetStringSlice("city")
		if m, _ := cmd.Flags().GetString("access-mode"); m != "" {
			cfg.Pipeline.AccessMode = m
		}
		if n, _ := cmd.Flags().GetInt("concurrency"); n > 0 {
			cfg.Pipeline.MaxConcurrentCities = n
		}
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		cities, err := selectCities(cfg.Cities, names)
		if err != nil {
			return err
		}
		mode, err := scorer.ParseAccessMode(cfg.Pipeline.AccessMode)
		if err != nil {
			return err
		}
		profile, err := loadProfile()
		if err != nil {
			return err
		}

		objects, err := initObjectStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init object store")
		}
		runlog, err := initRunLog(ctx)
		if err != nil {
			return err
		}
		defer runlog.Close() //nolint:errcheck

		metrics := monitoring.NewMetrics()
		runner := pipeline.New(initAcquirer(cfg.Source), objects, osmread.NewPBFReader(), pipelineOptions(cfg, mode, profile)).
			WithRunLog(runlog).
			WithMetrics(metrics)

		// PostGIS export (optional)
		if cfg.PostGIS.DatabaseURL != "" {
			pool, err := postgisPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			runner.WithExporter(geospatial.NewPostgresStore(pool, cfg.Pipeline.H3Resolution))
		}

		batch := runner.RunBatch(ctx, cities, cfg.Pipeline.MaxConcurrentCities)

		if err := metrics.WriteTextfile(cfg.Monitoring.Textfile); err != nil {
			zap.L().Warn("failed to write metrics textfile", zap.Error(err))
		}
		healthCheck(ctx, runlog)

		formatBatch(os.Stdout, batch)

		if failed := batch.Failed(); len(failed) > 0 {
			return eris.Errorf("%d of %d cities failed", len(failed), len(batch.Results))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringSlice("city", nil, "city to score (repeatable, default all configured cities)")
	runCmd.Flags().String("access-mode", "", "access mode: 24h, until-23:00 or until-19:00 (default from config)")
	runCmd.Flags().Int("concurrency", 0, "max cities in flight (default from config)")
	rootCmd.AddCommand(runCmd)
}

// selectCities returns the named cities in the given order, or all cities
// when no names are given.
func selectCities(all []model.City, names []string) ([]model.City, error) {
	if len(names) == 0 {
		return all, nil
	}
	out := make([]model.City, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		c, ok := model.FindCity(all, name)
		if !ok {
			return nil, eris.Errorf("unknown city %q", name)
		}
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		out = append(out, c)
	}
	return out, nil
}

// healthCheck evaluates recent city outcomes and posts alerts. Failures are
// logged and never change the exit status.
func healthCheck(ctx context.Context, runlog monitoring.RecordQuerier) {
	snap, alerts, err := monitoring.Check(ctx,
		monitoring.NewCollector(runlog),
		monitoring.NewAlerter(cfg.Monitoring),
		cfg.Monitoring.LookbackWindowHours,
	)
	if err != nil {
		zap.L().Warn("health check failed", zap.Error(err))
		return
	}
	zap.L().Info("health check",
		zap.Int("cities", snap.CitiesTotal),
		zap.Int("failed", snap.CitiesFailed),
		zap.Float64("fail_rate", snap.FailRate),
		zap.Int("alerts", len(alerts)),
	)
}

// formatBatch writes one line per city to w.
func formatBatch(out io.Writer, b *pipeline.Batch) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run %s: %s\n", b.RunID, b.Status)
	_, _ = fmt.Fprintln(w, "CITY\tSTAGE\tCELLS\tARTIFACT\tDURATION\tERROR")
	_, _ = fmt.Fprintln(w, "----\t-----\t-----\t--------\t--------\t-----")
	for _, r := range b.Results {
		stage := string(r.Stage)
		errMsg := ""
		if !r.OK() {
			stage = fmt.Sprintf("%s (%s)", r.Stage, r.FailedStage)
			if r.Err != nil {
				errMsg = r.Err.Error()
			}
		}
		errMsg = truncateRunes(errMsg, 80)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			r.City.Name,
			stage,
			r.Cells,
			r.ArtifactKey,
			r.Duration.Round(time.Second),
			errMsg,
		)
	}
	_ = w.Flush()
}

// truncateRunes shortens s to at most n runes, marking the cut with "...".
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
