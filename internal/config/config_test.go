package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, int64(50*1024*1024), cfg.MaxFileBytes())
	assert.Equal(t, filepath.Join("archive", "archive.db"), cfg.DBPath())
	assert.Equal(t, filepath.Join("archive", "documents"), cfg.DocumentsDir())
	assert.Equal(t, filepath.Join("archive", "bleve"), cfg.MirrorPath())
}

func TestLoadFile(t *testing.T) {
	body := `
archive_dir: /srv/archive
listen: ":9090"
max_file_mb: 10
mirror: false
ocr:
  api_key: from-file
  timeout: 30s
log:
  level: debug
  format: json
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/archive", cfg.ArchiveDir)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, 10, cfg.MaxFileMB)
	assert.False(t, cfg.Mirror)
	assert.Equal(t, "from-file", cfg.OCR.APIKey)
	assert.Equal(t, 30*time.Second, cfg.OCR.Timeout)
	assert.Equal(t, "mistral-ocr-latest", cfg.OCR.Model, "unset keys keep defaults")
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Listen, cfg.Listen)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ARCHIVE_DIR", "/tmp/env-archive")
	t.Setenv("OCR_API_KEY", "from-env")
	t.Setenv("ARCHIVE_MAX_FILE_MB", "7")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env-archive", cfg.ArchiveDir)
	assert.Equal(t, "from-env", cfg.OCR.APIKey)
	assert.Equal(t, 7, cfg.MaxFileMB)
}

func TestEnvOverrideInvalid(t *testing.T) {
	t.Setenv("ARCHIVE_MAX_FILE_MB", "lots")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty dir", func(c *Config) { c.ArchiveDir = "" }},
		{"zero max file", func(c *Config) { c.MaxFileMB = 0 }},
		{"zero concurrency", func(c *Config) { c.IngestConcurrency = 0 }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"zero ocr timeout", func(c *Config) { c.OCR.Timeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
