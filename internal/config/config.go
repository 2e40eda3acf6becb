// Package config loads and validates scanforge configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Download DownloadConfig `mapstructure:"download"`
	DB       DBConfig       `mapstructure:"db"`
	OCR      OCRConfig      `mapstructure:"ocr"`
	Export   ExportConfig   `mapstructure:"export"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// CatalogConfig governs the remote search and metadata API.
type CatalogConfig struct {
	BaseURL        string   `mapstructure:"base_url"`
	UserAgent      string   `mapstructure:"user_agent"`
	Subject        string   `mapstructure:"subject"`
	Collections    []string `mapstructure:"collections"`
	StartYear      int      `mapstructure:"start_year"`
	EndYear        int      `mapstructure:"end_year"`
	SortOrder      string   `mapstructure:"sort_order"`
	Query          string   `mapstructure:"query"`
	BatchSize      int      `mapstructure:"batch_size"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	RequestsPerSec float64  `mapstructure:"requests_per_sec"`
}

// DownloadConfig controls the per-file download loop.
type DownloadConfig struct {
	Dir           string  `mapstructure:"dir"`
	MaxRetries    int     `mapstructure:"max_retries"`
	DelaySeconds  float64 `mapstructure:"delay_seconds"`
	Concurrency   int     `mapstructure:"concurrency"`
	AllVariants   bool    `mapstructure:"all_variants"`
	Subcollection string  `mapstructure:"subcollection"`
}

// DBConfig controls access to the workflow tracking database.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int32  `mapstructure:"max_open_conns"`
}

// OCRConfig locates externally produced OCR output.
type OCRConfig struct {
	ResultsDir string `mapstructure:"results_dir"`
	Engine     string `mapstructure:"engine"`
}

// ExportConfig sets the export output layout.
type ExportConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	Type      string `mapstructure:"type"`
}

// ServerConfig controls the optional in-run status listener.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCANFORGE")
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
	v.SetDefault("catalog.base_url", "https://archive.org")
	v.SetDefault("catalog.user_agent", "scanforge/1.0 (academic use)")
	v.SetDefault("catalog.subject", "India -- Gazetteers")
	v.SetDefault("catalog.start_year", 1815)
	v.SetDefault("catalog.end_year", 1960)
	v.SetDefault("catalog.sort_order", "date desc")
	v.SetDefault("catalog.batch_size", 100)
	v.SetDefault("catalog.timeout_seconds", 30)
	v.SetDefault("catalog.requests_per_sec", 2)
	v.SetDefault("download.dir", "pdfs")
	v.SetDefault("download.max_retries", 3)
	v.SetDefault("download.delay_seconds", 0.1)
	v.SetDefault("download.concurrency", 4)
	v.SetDefault("db.max_open_conns", 4)
	v.SetDefault("ocr.results_dir", "results")
	v.SetDefault("ocr.engine", "olmOCR")
	v.SetDefault("export.output_dir", "exports")
	v.SetDefault("export.type", "both")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog.base_url must be set")
	}
	if c.Catalog.BatchSize <= 0 {
		return fmt.Errorf("catalog.batch_size must be > 0")
	}
	if c.Catalog.TimeoutSeconds <= 0 {
		return fmt.Errorf("catalog.timeout_seconds must be > 0")
	}
	if c.Download.MaxRetries <= 0 {
		return fmt.Errorf("download.max_retries must be > 0")
	}
	if c.Download.Concurrency <= 0 {
		return fmt.Errorf("download.concurrency must be > 0")
	}
	switch c.Export.Type {
	case "json", "markdown", "both":
	default:
		return fmt.Errorf("export.type must be one of json, markdown, both")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when server is enabled")
	}
	return nil
}

// RequestTimeout converts the catalog timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Catalog.TimeoutSeconds) * time.Second
}

// RetryDelay converts the download delay into a duration.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.Download.DelaySeconds * float64(time.Second))
}
