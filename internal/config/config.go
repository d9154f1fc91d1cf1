// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/opencaselaw/harvester/internal/pipeline"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Source   SourceConfig   `mapstructure:"source"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SourceConfig describes the remote case repository.
type SourceConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// StorageConfig selects and configures the record store backend. Document
// bodies always live on the local filesystem under DataDir.
type StorageConfig struct {
	Backend       string `mapstructure:"backend"`
	DataDir       string `mapstructure:"data_dir"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	PostgresTable string `mapstructure:"postgres_table"`
}

// PipelineConfig governs the default run parameters; callers may override
// them per run through the API.
type PipelineConfig struct {
	Sources              []string `mapstructure:"sources"`
	YearStart            int      `mapstructure:"year_start"`
	YearEnd              int      `mapstructure:"year_end"`
	RequestDelayMs       int      `mapstructure:"request_delay_ms"`
	Strategies           []string `mapstructure:"strategies"`
	AutoRotate           bool     `mapstructure:"auto_rotate"`
	FailureThreshold     int      `mapstructure:"failure_threshold"`
	FixYears             bool     `mapstructure:"fix_years"`
	Deduplicate          bool     `mapstructure:"deduplicate"`
	Download             bool     `mapstructure:"download"`
	DownloadBatchSize    int      `mapstructure:"download_batch_size"`
	DownloadSourceFilter string   `mapstructure:"download_source_filter"`
	CheckpointEvery      int      `mapstructure:"checkpoint_every"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("source.user_agent", "caselaw-harvester/0.1")
	v.SetDefault("source.timeout_seconds", 20)
	v.SetDefault("storage.backend", "jsonfile")
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.postgres_table", "records")
	v.SetDefault("pipeline.request_delay_ms", 1000)
	v.SetDefault("pipeline.strategies", []string{"direct", "browse", "search"})
	v.SetDefault("pipeline.auto_rotate", true)
	v.SetDefault("pipeline.failure_threshold", 3)
	v.SetDefault("pipeline.fix_years", true)
	v.SetDefault("pipeline.deduplicate", true)
	v.SetDefault("pipeline.download", true)
	v.SetDefault("pipeline.checkpoint_every", 10)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Source.TimeoutSeconds <= 0 {
		return fmt.Errorf("source.timeout_seconds must be > 0")
	}
	switch c.Storage.Backend {
	case "jsonfile":
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path must be set for the sqlite backend")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	return nil
}

// RunConfig converts the configured defaults into a pipeline.Config.
func (c Config) RunConfig() pipeline.Config {
	return pipeline.Config{
		Sources:              append([]string(nil), c.Pipeline.Sources...),
		YearStart:            c.Pipeline.YearStart,
		YearEnd:              c.Pipeline.YearEnd,
		RequestDelay:         time.Duration(c.Pipeline.RequestDelayMs) * time.Millisecond,
		Strategies:           append([]string(nil), c.Pipeline.Strategies...),
		AutoRotate:           c.Pipeline.AutoRotate,
		FailureThreshold:     c.Pipeline.FailureThreshold,
		FixYears:             c.Pipeline.FixYears,
		Deduplicate:          c.Pipeline.Deduplicate,
		Download:             c.Pipeline.Download,
		DownloadBatchSize:    c.Pipeline.DownloadBatchSize,
		DownloadSourceFilter: c.Pipeline.DownloadSourceFilter,
		CheckpointEvery:      c.Pipeline.CheckpointEvery,
	}
}

// Timeout converts the source timeout into a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}
