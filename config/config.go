// Package config loads and validates the pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config captures all service configuration, assembled once at startup and
// passed by reference into each component's constructor.
type Config struct {
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Media     MediaConfig     `mapstructure:"media"`
	Report    ReportConfig    `mapstructure:"report"`
	Retention RetentionConfig `mapstructure:"retention"`
	Finder    FinderConfig    `mapstructure:"finder"`
	Sinks     SinksConfig     `mapstructure:"sinks"`
	S3        S3Config        `mapstructure:"s3"`
	OCR       OCRConfig       `mapstructure:"ocr"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Service   ServiceConfig   `mapstructure:"service"`
}

// TelegramConfig holds MTProto credentials and session placement.
type TelegramConfig struct {
	APIID      int    `mapstructure:"api_id"`
	APIHash    string `mapstructure:"api_hash"`
	Phone      string `mapstructure:"phone"`
	SessionDir string `mapstructure:"session_dir"`
	// RequestsPerSecond caps outbound API calls.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// StorageConfig controls the main relational store and on-disk layout.
type StorageConfig struct {
	// Driver selects the main store backend: "sqlite" or "postgres".
	Driver string `mapstructure:"driver"`
	// Path is the sqlite database file (sqlite driver).
	Path string `mapstructure:"path"`
	// DSN is the postgres connection string (postgres driver).
	DSN string `mapstructure:"dsn"`
	// MediaDir is the root under which per-group media shards live.
	MediaDir string `mapstructure:"media_dir"`
	// ReportDir receives rendered reports and their asset folders.
	ReportDir string `mapstructure:"report_dir"`
}

// PipelineConfig declares the module sequence executed by `run`.
type PipelineConfig struct {
	Sequence []string        `mapstructure:"sequence"`
	Modules  map[string]bool `mapstructure:"modules"`
}

// SyncConfig governs backfill and live-listen behavior.
type SyncConfig struct {
	PageSize      int           `mapstructure:"page_size"`
	PageDelay     time.Duration `mapstructure:"page_delay"`
	DownloadMedia bool          `mapstructure:"download_media"`
	// GroupFilter, when non-empty, restricts listening to these group IDs.
	GroupFilter []int64 `mapstructure:"group_filter"`
}

// MediaConfig bounds attachment handling.
type MediaConfig struct {
	// MaxFileSize is the download cutoff in bytes.
	MaxFileSize int64 `mapstructure:"max_file_size"`
}

// ReportConfig carries report/export defaults.
type ReportConfig struct {
	WindowRadius     int           `mapstructure:"window_radius"`
	AgeLimit         time.Duration `mapstructure:"age_limit"`
	OrderAscending   bool          `mapstructure:"order_ascending"`
	SuppressRepeated bool          `mapstructure:"suppress_repeated"`
}

// RetentionConfig controls the purge modules.
type RetentionConfig struct {
	Days     int           `mapstructure:"days"`
	StateTTL time.Duration `mapstructure:"state_ttl"`
}

// FinderRule routes matched messages to named sinks.
type FinderRule struct {
	ID       string   `mapstructure:"id"`
	Regex    string   `mapstructure:"regex"`
	Keywords string   `mapstructure:"keywords"`
	Sinks    []string `mapstructure:"sinks"`
}

// FinderConfig is the rule set applied while listening/exporting.
type FinderConfig struct {
	Rules []FinderRule `mapstructure:"rules"`
}

// SinksConfig configures the export/notification destinations.
type SinksConfig struct {
	RollingFile RollingFileConfig `mapstructure:"rolling_file"`
	Telegram    TelegramSinkConfig `mapstructure:"telegram"`
	Indexer     IndexerConfig     `mapstructure:"indexer"`
}

// RollingFileConfig controls the batched rolling file writer.
type RollingFileConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Dir      string `mapstructure:"dir"`
	// IntervalMinutes is the minute-aligned rolling boundary.
	IntervalMinutes int `mapstructure:"interval_minutes"`
	// Encoding is one of csv, html, json, gob.
	Encoding string `mapstructure:"encoding"`
}

// TelegramSinkConfig controls the deduplicated chat notifier.
type TelegramSinkConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	BotToken    string        `mapstructure:"bot_token"`
	ChatID      int64         `mapstructure:"chat_id"`
	DedupWindow time.Duration `mapstructure:"dedup_window"`
}

// IndexerConfig controls the search-index sink.
type IndexerConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// S3Config controls optional offsite media archiving.
type S3Config struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// OCRConfig toggles image text extraction.
type OCRConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Languages string `mapstructure:"languages"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// ServiceConfig holds the metrics/health listener settings.
type ServiceConfig struct {
	Name string `mapstructure:"name"`
	Port string `mapstructure:"port"`
}

// Load builds a Config from the given file plus GRAMWATCH_* environment
// overrides. A .env file in the working directory is honored first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GRAMWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.session_dir", "./sessions")
	v.SetDefault("telegram.requests_per_second", 10.0)
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", "./data/gramwatch.db")
	v.SetDefault("storage.media_dir", "./data/media")
	v.SetDefault("storage.report_dir", "./data/reports")
	v.SetDefault("pipeline.sequence", []string{"connect", "load_groups", "download_messages"})
	v.SetDefault("sync.page_size", 500)
	v.SetDefault("sync.page_delay", "2s")
	v.SetDefault("sync.download_media", true)
	v.SetDefault("media.max_file_size", int64(256_000_000))
	v.SetDefault("report.window_radius", 0)
	v.SetDefault("report.age_limit", "720h")
	v.SetDefault("report.order_ascending", true)
	v.SetDefault("retention.days", 30)
	v.SetDefault("retention.state_ttl", "24h")
	v.SetDefault("sinks.rolling_file.dir", "./data/exports")
	v.SetDefault("sinks.rolling_file.interval_minutes", 5)
	v.SetDefault("sinks.rolling_file.encoding", "json")
	v.SetDefault("sinks.telegram.dedup_window", "1h")
	v.SetDefault("sinks.indexer.topic", "gramwatch.matches")
	v.SetDefault("ocr.languages", "eng")
	v.SetDefault("logging.level", "info")
	v.SetDefault("service.name", "gramwatch")
	v.SetDefault("service.port", "8084")
}

// Validate enforces required values and reasonable limits.
func (c *Config) Validate() error {
	if c.Telegram.APIID == 0 {
		return fmt.Errorf("telegram.api_id is required")
	}
	if c.Telegram.APIHash == "" {
		return fmt.Errorf("telegram.api_hash is required")
	}
	if c.Telegram.Phone == "" {
		return fmt.Errorf("telegram.phone is required")
	}
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver must be sqlite or postgres, got %q", c.Storage.Driver)
	}
	if c.Sync.PageSize <= 0 {
		return fmt.Errorf("sync.page_size must be > 0")
	}
	if c.Media.MaxFileSize <= 0 {
		return fmt.Errorf("media.max_file_size must be > 0")
	}
	if c.Sinks.Telegram.Enabled && (c.Sinks.Telegram.BotToken == "" || c.Sinks.Telegram.ChatID == 0) {
		return fmt.Errorf("sinks.telegram requires bot_token and chat_id when enabled")
	}
	if c.Sinks.Indexer.Enabled && len(c.Sinks.Indexer.Brokers) == 0 {
		return fmt.Errorf("sinks.indexer requires brokers when enabled")
	}
	switch c.Sinks.RollingFile.Encoding {
	case "csv", "html", "json", "gob":
	default:
		return fmt.Errorf("sinks.rolling_file.encoding must be one of csv, html, json, gob")
	}
	for _, r := range c.Finder.Rules {
		if r.ID == "" {
			return fmt.Errorf("finder rule without id")
		}
		if r.Regex == "" && r.Keywords == "" {
			return fmt.Errorf("finder rule %s needs a regex or keywords", r.ID)
		}
	}
	return nil
}

// GroupAllowed applies the optional sync group filter.
func (c *SyncConfig) GroupAllowed(groupID int64) bool {
	if len(c.GroupFilter) == 0 {
		return true
	}
	for _, id := range c.GroupFilter {
		if id == groupID {
			return true
		}
	}
	return false
}
