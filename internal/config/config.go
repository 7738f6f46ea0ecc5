// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/equipment-crawler/internal/images"
	"github.com/JakeFAU/equipment-crawler/internal/logging"
	"github.com/JakeFAU/equipment-crawler/internal/persist"
	"github.com/JakeFAU/equipment-crawler/internal/pipeline"
	"github.com/JakeFAU/equipment-crawler/internal/source"
	"github.com/JakeFAU/equipment-crawler/internal/storage/local"
	"github.com/JakeFAU/equipment-crawler/internal/storage/postgres"
	"github.com/JakeFAU/equipment-crawler/internal/telemetry"
)

// EnvPrefix is prepended to every environment override, e.g.
// EQUIPMENT_DB_DSN for db.dsn.
const EnvPrefix = "EQUIPMENT"

// Storage backends.
const (
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig               `mapstructure:"server"`
	HTTP      HTTPConfig                 `mapstructure:"http"`
	Crawler   CrawlerConfig              `mapstructure:"crawler"`
	Headless  HeadlessConfig             `mapstructure:"headless"`
	Images    ImagesConfig               `mapstructure:"images"`
	Persist   PersistConfig              `mapstructure:"persist"`
	Storage   StorageConfig              `mapstructure:"storage"`
	DB        DBConfig                   `mapstructure:"db"`
	PubSub    PubSubConfig               `mapstructure:"pubsub"`
	Progress  ProgressConfig             `mapstructure:"progress"`
	Logging   logging.Config             `mapstructure:"logging"`
	Telemetry telemetry.Config           `mapstructure:"telemetry"`
	Sources   map[string]source.Override `mapstructure:"sources"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// HTTPConfig configures the static fetcher.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int `mapstructure:"max_body_bytes"`
}

// CrawlerConfig governs crawl behavior and run defaults.
type CrawlerConfig struct {
	UserAgent         string   `mapstructure:"user_agent"`
	IgnoreRobots      bool     `mapstructure:"ignore_robots"`
	DetailConcurrency int      `mapstructure:"detail_concurrency"`
	DefaultDelayMs    int      `mapstructure:"default_delay_ms"`
	DefaultSources    []string `mapstructure:"default_sources"`
	DefaultMaxItems   int      `mapstructure:"default_max_items"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	MaxParallel     int    `mapstructure:"max_parallel"`
	NavTimeoutSec   int    `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int    `mapstructure:"promotion_threshold"`
	ExecPath        string `mapstructure:"exec_path"`
	NoSandbox       bool   `mapstructure:"no_sandbox"`
}

// ImagesConfig controls image re-hosting.
type ImagesConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	MinBytes       int64  `mapstructure:"min_bytes"`
	SearchURL      string `mapstructure:"search_url"`
	SearchResults  int    `mapstructure:"search_results"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// PersistConfig controls batched persistence.
type PersistConfig struct {
	BatchSize    int    `mapstructure:"batch_size"`
	Concurrency  int    `mapstructure:"concurrency"`
	BatchDelayMs int    `mapstructure:"batch_delay_ms"`
	Topic        string `mapstructure:"topic"`
}

// StorageConfig selects the image blob store.
type StorageConfig struct {
	Backend       string       `mapstructure:"backend"`
	Prefix        string       `mapstructure:"prefix"`
	Bucket        string       `mapstructure:"bucket"`
	PublicBaseURL string       `mapstructure:"public_base_url"`
	Local         local.Config `mapstructure:"local"`
}

// DBConfig controls access to the relational database. An empty DSN keeps
// records in memory.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	EquipmentTable  string        `mapstructure:"equipment_table"`
	RunTable        string        `mapstructure:"run_table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

// PubSubConfig holds metadata for insert notifications. An empty project
// keeps notifications in memory.
type PubSubConfig struct {
	ProjectID string            `mapstructure:"project_id"`
	Topics    map[string]string `mapstructure:"topics"`
}

// ProgressConfig tunes the live run event hub.
type ProgressConfig struct {
	BufferSize     int  `mapstructure:"buffer_size"`
	MaxBatchEvents int  `mapstructure:"max_batch_events"`
	MaxBatchWaitMs int  `mapstructure:"max_batch_wait_ms"`
	LogEvents      bool `mapstructure:"log_events"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_body_bytes", 10*1024*1024)
	v.SetDefault("crawler.user_agent", "equipment-crawler/1.0 (+https://github.com/JakeFAU/equipment-crawler)")
	v.SetDefault("crawler.ignore_robots", false)
	v.SetDefault("crawler.detail_concurrency", 4)
	v.SetDefault("crawler.default_delay_ms", 1000)
	v.SetDefault("crawler.default_sources", []string{pipeline.DefaultSource})
	v.SetDefault("crawler.default_max_items", pipeline.DefaultMaxItems)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promotion_threshold", 60)
	v.SetDefault("images.enabled", true)
	v.SetDefault("images.min_bytes", images.DefaultMinBytes)
	v.SetDefault("images.search_results", images.DefaultSearchResults)
	v.SetDefault("images.timeout_seconds", int(images.DefaultTimeout/time.Second))
	v.SetDefault("persist.batch_size", persist.DefaultBatchSize)
	v.SetDefault("persist.concurrency", persist.DefaultConcurrency)
	v.SetDefault("persist.batch_delay_ms", int(persist.DefaultBatchDelay/time.Millisecond))
	v.SetDefault("persist.topic", persist.CreatedTopic)
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.prefix", "equipment")
	v.SetDefault("db.equipment_table", postgres.DefaultEquipmentTable)
	v.SetDefault("db.run_table", postgres.DefaultRunTable)
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("db.ensure_schema", true)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 100)
	v.SetDefault("progress.max_batch_wait_ms", 200)
	v.SetDefault("progress.log_events", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("telemetry.service_name", telemetry.DefaultServiceName)
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Crawler.DetailConcurrency <= 0 {
		return fmt.Errorf("crawler.detail_concurrency must be > 0")
	}
	if c.Crawler.DefaultDelayMs < 0 {
		return fmt.Errorf("crawler.default_delay_ms must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Images.MinBytes < 0 {
		return fmt.Errorf("images.min_bytes must be >= 0")
	}
	if c.Images.SearchURL != "" && !strings.Contains(c.Images.SearchURL, images.QueryToken) {
		return fmt.Errorf("images.search_url must contain %s", images.QueryToken)
	}
	if c.Persist.BatchSize <= 0 {
		return fmt.Errorf("persist.batch_size must be > 0")
	}
	if c.Persist.Concurrency <= 0 {
		return fmt.Errorf("persist.concurrency must be > 0")
	}
	if c.Persist.BatchDelayMs < 0 {
		return fmt.Errorf("persist.batch_delay_ms must be >= 0")
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendLocal:
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.DB.MinConns > c.DB.MaxConns && c.DB.MaxConns > 0 {
		return fmt.Errorf("db.min_conns must not exceed db.max_conns")
	}
	if c.Progress.BufferSize < 0 || c.Progress.MaxBatchEvents < 0 || c.Progress.MaxBatchWaitMs < 0 {
		return fmt.Errorf("progress.* values must be >= 0")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0,1]")
	}
	return nil
}

// FetchTimeout is the per-request timeout of the static fetcher.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds graceful shutdown of the HTTP server.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// ProgressWait is the longest a run event waits in the hub before delivery.
func (c Config) ProgressWait() time.Duration {
	return time.Duration(c.Progress.MaxBatchWaitMs) * time.Millisecond
}

// BatchDelay is the pause between persistence batches.
func (c Config) BatchDelay() time.Duration {
	return time.Duration(c.Persist.BatchDelayMs) * time.Millisecond
}
