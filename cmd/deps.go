package main

import (
	"context"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/atm-scoring/internal/config"
	"github.com/sells-group/atm-scoring/internal/db"
	"github.com/sells-group/atm-scoring/internal/fetcher"
	"github.com/sells-group/atm-scoring/internal/objstore"
	"github.com/sells-group/atm-scoring/internal/pipeline"
	"github.com/sells-group/atm-scoring/internal/population"
	"github.com/sells-group/atm-scoring/internal/resilience"
	"github.com/sells-group/atm-scoring/internal/scorer"
	"github.com/sells-group/atm-scoring/internal/source"
	"github.com/sells-group/atm-scoring/internal/store"
)

// initObjectStore opens the configured object store.
func initObjectStore(ctx context.Context) (objstore.Store, error) {
	switch cfg.Storage.Driver {
	case "minio":
		return objstore.NewMinIOStore(ctx, objstore.MinIOConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Region:    cfg.Storage.Region,
			Bucket:    cfg.Storage.Bucket,
			PartSize:  uint64(cfg.Storage.PartSizeMB) * 1024 * 1024,
		})
	case "dir":
		return objstore.NewDirStore(cfg.Storage.LocalDir)
	default:
		return nil, eris.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}
}

// initRunLog opens and migrates the sqlite run log.
func initRunLog(ctx context.Context) (*store.SQLiteStore, error) {
	st, err := store.NewSQLite(cfg.RunLog.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate run log")
	}
	return st, nil
}

// postgisPool connects to the PostGIS database.
func postgisPool(ctx context.Context) (*pgxpool.Pool, error) {
	if cfg.PostGIS.DatabaseURL == "" {
		return nil, eris.New("postgis: no database_url configured (set postgis.database_url or ATM_POSTGIS_DATABASE_URL)")
	}
	pool, err := db.Connect(ctx, cfg.PostGIS.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "postgis: connect")
	}
	return pool, nil
}

// initAcquirer builds the OSM acquirer. Region dumps are shared between
// cities of the same region, and come from the mirror in http mode.
func initAcquirer(sc config.SourceConfig) *source.ScriptAcquirer {
	acq := source.NewScriptAcquirer(sc.ScriptsDir, sc.DataDir)

	var regions source.RegionFetcher = source.NewScriptAcquirer(sc.ScriptsDir, sc.DataDir)
	if sc.Mode == "http" {
		regions = &source.HTTPRegionFetcher{
			Fetcher: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
				Timeout:      time.Duration(sc.FetchTimeoutMins) * time.Minute,
				RateLimiters: mirrorLimiters(sc),
			}),
			MirrorURL: sc.MirrorURL,
			Layout:    acq.Layout,
			Breaker:   mirrorBreaker(sc),
		}
	}
	acq.Regions = source.NewSharedRegions(regions, time.Duration(sc.FetchTimeoutMins)*time.Minute)
	return acq
}

// mirrorBreaker returns nil when the breaker is disabled.
func mirrorBreaker(sc config.SourceConfig) *resilience.CircuitBreaker {
	if sc.BreakerThreshold <= 0 {
		return nil
	}
	bc := resilience.DefaultCircuitBreakerConfig("mirror")
	bc.FailureThreshold = sc.BreakerThreshold
	if sc.BreakerResetMins > 0 {
		bc.ResetTimeout = time.Duration(sc.BreakerResetMins) * time.Minute
	}
	return resilience.NewCircuitBreaker(bc)
}

func mirrorLimiters(sc config.SourceConfig) map[string]*rate.Limiter {
	limiters := fetcher.DefaultRateLimiters()
	if sc.RateLimitPerSec <= 0 {
		return limiters
	}
	if u, err := url.Parse(sc.MirrorURL); err == nil && u.Host != "" {
		limiters[u.Host] = rate.NewLimiter(rate.Limit(sc.RateLimitPerSec), 1)
	}
	return limiters
}

// loadProfile returns the configured scoring profile, or the default one.
func loadProfile() (scorer.Profile, error) {
	if cfg.Scoring.ProfilePath == "" {
		return scorer.DefaultProfile(), nil
	}
	p, err := scorer.LoadProfile(cfg.Scoring.ProfilePath)
	if err != nil {
		return scorer.Profile{}, eris.Wrap(err, "load scoring profile")
	}
	zap.L().Info("scoring profile loaded",
		zap.String("path", cfg.Scoring.ProfilePath),
		zap.String("version", p.Version),
		zap.String("hash", p.Hash()),
	)
	return p, nil
}

// pipelineOptions maps the configuration onto the runner options.
func pipelineOptions(c *config.Config, mode scorer.AccessMode, profile scorer.Profile) pipeline.Options {
	return pipeline.Options{
		Resolution: c.Pipeline.H3Resolution,
		AccessMode: mode,
		Profile:    profile,
		Population: population.RegistryOptions{
			ImplausibleLiving:   c.Population.ImplausibleLiving,
			FallbackCoefficient: c.Population.FallbackCoefficient,
			FixedCoefficient:    c.Population.FixedCoefficient,
		},
		ResidentsPerBuilding: c.Population.ResidentsPerBuilding,
		TagFilterKey:         c.Pipeline.TagFilterKey,
		Retry:                resilience.FromFetchConfig(0, c.Source.RetrySchedule, c.Source.FetchTimeoutMins),
		Layout:               source.Layout{DataDir: c.Source.DataDir},
	}
}
