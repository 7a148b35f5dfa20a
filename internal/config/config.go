package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/atm-scoring/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Storage    StorageConfig    `yaml:"storage" mapstructure:"storage"`
	Source     SourceConfig     `yaml:"source" mapstructure:"source"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Population PopulationConfig `yaml:"population" mapstructure:"population"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Cities     []model.City     `yaml:"cities" mapstructure:"cities"`
	RunLog     RunLogConfig     `yaml:"runlog" mapstructure:"runlog"`
	PostGIS    PostGISConfig    `yaml:"postgis" mapstructure:"postgis"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StorageConfig configures the object store holding the tag filter,
// population registries, and published artifacts.
type StorageConfig struct {
	Driver     string `yaml:"driver" mapstructure:"driver"` // "minio" or "dir"
	Endpoint   string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey  string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey  string `yaml:"secret_key" mapstructure:"secret_key"`
	UseSSL     bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
	Bucket     string `yaml:"bucket" mapstructure:"bucket"`
	Region     string `yaml:"region" mapstructure:"region"`
	PartSizeMB int    `yaml:"part_size_mb" mapstructure:"part_size_mb"`
	LocalDir   string `yaml:"local_dir" mapstructure:"local_dir"`
}

// SourceConfig configures acquisition of the OSM region dumps.
type SourceConfig struct {
	ScriptsDir       string  `yaml:"scripts_dir" mapstructure:"scripts_dir"`
	DataDir          string  `yaml:"data_dir" mapstructure:"data_dir"`
	Mode             string  `yaml:"mode" mapstructure:"mode"` // "script" or "http"
	MirrorURL        string  `yaml:"mirror_url" mapstructure:"mirror_url"`
	FetchTimeoutMins int     `yaml:"fetch_timeout_mins" mapstructure:"fetch_timeout_mins"`
	RetrySchedule    []int   `yaml:"retry_schedule_secs" mapstructure:"retry_schedule_secs"`
	RateLimitPerSec  float64 `yaml:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec"`
	BreakerThreshold int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"` // 0 disables
	BreakerResetMins int     `yaml:"breaker_reset_mins" mapstructure:"breaker_reset_mins"`
}

// PipelineConfig configures the per-city workflow.
type PipelineConfig struct {
	H3Resolution        int    `yaml:"h3_resolution" mapstructure:"h3_resolution"`
	MaxConcurrentCities int    `yaml:"max_concurrent_cities" mapstructure:"max_concurrent_cities"`
	AccessMode          string `yaml:"access_mode" mapstructure:"access_mode"`
	TagFilterKey        string `yaml:"tag_filter_key" mapstructure:"tag_filter_key"`
}

// PopulationConfig configures residential population estimation.
type PopulationConfig struct {
	ImplausibleLiving    float64 `yaml:"implausible_living" mapstructure:"implausible_living"`
	FallbackCoefficient  float64 `yaml:"fallback_coefficient" mapstructure:"fallback_coefficient"`
	FixedCoefficient     bool    `yaml:"fixed_coefficient" mapstructure:"fixed_coefficient"`
	ResidentsPerBuilding float64 `yaml:"residents_per_building" mapstructure:"residents_per_building"`
}

// ScoringConfig points at an optional scoring profile override.
type ScoringConfig struct {
	ProfilePath string `yaml:"profile_path" mapstructure:"profile_path"`
}

// RunLogConfig configures the local sqlite run log.
type RunLogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostGISConfig configures the optional PostGIS export of scored cells.
type PostGISConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// MonitoringConfig configures metrics export and post-run alerting.
type MonitoringConfig struct {
	Textfile             string  `yaml:"textfile" mapstructure:"textfile"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, file, and environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ATM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("storage.driver", "minio")
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.bucket", "atm-location-assessment")
	v.SetDefault("storage.part_size_mb", 10)
	v.SetDefault("storage.local_dir", "bucket")
	v.SetDefault("source.scripts_dir", "scripts")
	v.SetDefault("source.data_dir", "data")
	v.SetDefault("source.mode", "script")
	v.SetDefault("source.mirror_url", "https://download.geofabrik.de/russia")
	v.SetDefault("source.fetch_timeout_mins", 30)
	v.SetDefault("source.retry_schedule_secs", []int{10, 20, 40})
	v.SetDefault("source.rate_limit_per_sec", 1.0)
	v.SetDefault("source.breaker_threshold", 6)
	v.SetDefault("source.breaker_reset_mins", 5)
	v.SetDefault("pipeline.h3_resolution", 8)
	v.SetDefault("pipeline.max_concurrent_cities", 2)
	v.SetDefault("pipeline.access_mode", "until-23:00")
	v.SetDefault("pipeline.tag_filter_key", "osm_tags_filter.json")
	v.SetDefault("population.implausible_living", 1000)
	v.SetDefault("population.fallback_coefficient", 2.11)
	v.SetDefault("population.fixed_coefficient", false)
	v.SetDefault("population.residents_per_building", 185)
	v.SetDefault("runlog.path", "atm-runs.db")
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.lookback_window_hours", 24)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if len(cfg.Cities) == 0 {
		cfg.Cities = model.DefaultCities()
	}

	return &cfg, nil
}

// Validate checks the fields a command needs. Mode is one of "run",
// "rescore", "runs", or "postgis".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "run":
		errs = append(errs, c.validateStorage()...)
		errs = append(errs, c.validatePipeline()...)
		if c.Source.Mode != "script" && c.Source.Mode != "http" {
			errs = append(errs, `source.mode must be "script" or "http"`)
		}
		if c.Source.Mode == "http" && c.Source.MirrorURL == "" {
			errs = append(errs, "source.mirror_url is required when source.mode is http")
		}
		if c.Source.DataDir == "" {
			errs = append(errs, "source.data_dir is required")
		}
		for i, s := range c.Source.RetrySchedule {
			if s < 0 {
				errs = append(errs, fmt.Sprintf("source.retry_schedule_secs[%d] must be >= 0", i))
			}
		}
		if c.Population.FallbackCoefficient <= 0 {
			errs = append(errs, "population.fallback_coefficient must be > 0")
		}
		if c.Population.ResidentsPerBuilding <= 0 {
			errs = append(errs, "population.residents_per_building must be > 0")
		}
		if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
			errs = append(errs, "monitoring.failure_rate_threshold must be between 0 and 1")
		}
		errs = append(errs, c.validateCities()...)
	case "rescore":
		errs = append(errs, c.validateStorage()...)
	case "runs":
		if c.RunLog.Path == "" {
			errs = append(errs, "runlog.path is required")
		}
	case "postgis":
		if c.PostGIS.DatabaseURL == "" {
			errs = append(errs, "postgis.database_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStorage() []string {
	var errs []string
	switch c.Storage.Driver {
	case "minio":
		if c.Storage.Endpoint == "" {
			errs = append(errs, "storage.endpoint is required")
		}
		if c.Storage.AccessKey == "" {
			errs = append(errs, "storage.access_key is required")
		}
		if c.Storage.SecretKey == "" {
			errs = append(errs, "storage.secret_key is required")
		}
	case "dir":
		if c.Storage.LocalDir == "" {
			errs = append(errs, "storage.local_dir is required")
		}
	default:
		errs = append(errs, `storage.driver must be "minio" or "dir"`)
	}
	if c.Storage.PartSizeMB < 0 {
		errs = append(errs, "storage.part_size_mb must be >= 0")
	}
	return errs
}

func (c *Config) validatePipeline() []string {
	var errs []string
	if c.Pipeline.H3Resolution < 0 || c.Pipeline.H3Resolution > 15 {
		errs = append(errs, "pipeline.h3_resolution must be between 0 and 15")
	}
	if c.Pipeline.MaxConcurrentCities < 1 || c.Pipeline.MaxConcurrentCities > 16 {
		errs = append(errs, "pipeline.max_concurrent_cities must be between 1 and 16")
	}
	if c.Pipeline.TagFilterKey == "" {
		errs = append(errs, "pipeline.tag_filter_key is required")
	}
	return errs
}

func (c *Config) validateCities() []string {
	var errs []string
	if len(c.Cities) == 0 {
		errs = append(errs, "at least one city is required")
	}
	seen := make(map[string]bool, len(c.Cities))
	for i, city := range c.Cities {
		if city.Name == "" {
			errs = append(errs, fmt.Sprintf("cities[%d].name is required", i))
			continue
		}
		key := strings.ToLower(city.Name)
		if seen[key] {
			errs = append(errs, fmt.Sprintf("cities[%d]: duplicate city %q", i, city.Name))
		}
		seen[key] = true
		if city.OSMID == "" {
			errs = append(errs, fmt.Sprintf("cities[%d].osm_id is required", i))
		}
		if city.Region == "" {
			errs = append(errs, fmt.Sprintf("cities[%d].region is required", i))
		}
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
