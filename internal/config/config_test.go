package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/scanforge/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://archive.org", cfg.Catalog.BaseURL)
	assert.Equal(t, 100, cfg.Catalog.BatchSize)
	assert.Equal(t, 1815, cfg.Catalog.StartYear)
	assert.Equal(t, 1960, cfg.Catalog.EndYear)
	assert.Equal(t, 3, cfg.Download.MaxRetries)
	assert.Equal(t, 4, cfg.Download.Concurrency)
	assert.Equal(t, "both", cfg.Export.Type)
	assert.Equal(t, "olmOCR", cfg.OCR.Engine)
	assert.False(t, cfg.Server.Enabled)

	assert.Equal(t, 30*time.Second, cfg.RequestTimeout())
	assert.Equal(t, 100*time.Millisecond, cfg.RetryDelay())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
catalog:
  subject: "Test Subject"
  batch_size: 25
download:
  dir: /tmp/pdfs
  delay_seconds: 0.5
export:
  type: json
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Test Subject", cfg.Catalog.Subject)
	assert.Equal(t, 25, cfg.Catalog.BatchSize)
	assert.Equal(t, "/tmp/pdfs", cfg.Download.Dir)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryDelay())
	assert.Equal(t, "json", cfg.Export.Type)
	// Untouched keys keep their defaults.
	assert.Equal(t, "https://archive.org", cfg.Catalog.BaseURL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateRejections(t *testing.T) {
	base := func() config.Config {
		cfg, err := config.Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing base url", func(c *config.Config) { c.Catalog.BaseURL = "" }},
		{"zero batch size", func(c *config.Config) { c.Catalog.BatchSize = 0 }},
		{"zero timeout", func(c *config.Config) { c.Catalog.TimeoutSeconds = 0 }},
		{"zero retries", func(c *config.Config) { c.Download.MaxRetries = 0 }},
		{"zero concurrency", func(c *config.Config) { c.Download.Concurrency = 0 }},
		{"bad export type", func(c *config.Config) { c.Export.Type = "xml" }},
		{"server without port", func(c *config.Config) { c.Server.Enabled = true; c.Server.Port = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
