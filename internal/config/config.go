package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	BatchData BatchDataConfig `yaml:"batchdata" mapstructure:"batchdata"`
	Worker    WorkerConfig    `yaml:"worker" mapstructure:"worker"`
	Backfill  BackfillConfig  `yaml:"backfill" mapstructure:"backfill"`
	Sources   SourcesConfig   `yaml:"sources" mapstructure:"sources"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// BatchDataConfig holds skip-trace provider settings and spend governance.
type BatchDataConfig struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	DailyLimit  int     `yaml:"daily_limit" mapstructure:"daily_limit"`
	DryRun      bool    `yaml:"dry_run" mapstructure:"dry_run"`
	CostPerCall float64 `yaml:"cost_per_call" mapstructure:"cost_per_call"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// WorkerConfig configures the enrichment worker loop.
type WorkerConfig struct {
	StaleLockMinutes int `yaml:"stale_lock_minutes" mapstructure:"stale_lock_minutes"`
}

// BackfillConfig configures the queue backfill job.
type BackfillConfig struct {
	PageSize    int `yaml:"page_size" mapstructure:"page_size"`
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// SourcesConfig configures the listing-source adapters.
type SourcesConfig struct {
	// MapFile optionally points at a YAML file overriding the built-in
	// per-table field maps.
	MapFile string `yaml:"map_file" mapstructure:"map_file"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	// AutomaticEnv only surfaces keys viper already knows about, so the
	// secret-bearing keys need empty defaults for their env vars to land.
	v.SetDefault("store.database_url", "")
	v.SetDefault("batchdata.api_key", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("batchdata.enabled", false)
	v.SetDefault("batchdata.base_url", "https://api.batchdata.com/api/v1/property/skip-trace")
	v.SetDefault("batchdata.daily_limit", 50)
	v.SetDefault("batchdata.dry_run", false)
	v.SetDefault("batchdata.cost_per_call", 0.085)
	v.SetDefault("batchdata.timeout_secs", 15)
	v.SetDefault("batchdata.rate_per_sec", 1.0)
	v.SetDefault("worker.stale_lock_minutes", 15)
	v.SetDefault("backfill.page_size", 1000)
	v.SetDefault("backfill.concurrency", 3)

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

	return &cfg, nil
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
