// Package config loads the doc-archive configuration from a YAML file and
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full doc-archive configuration.
type Config struct {
	ArchiveDir        string    `yaml:"archive_dir"`
	Listen            string    `yaml:"listen"`
	MaxFileMB         int       `yaml:"max_file_mb"`
	BusyTimeoutMS     int       `yaml:"busy_timeout_ms"`
	Mirror            bool      `yaml:"mirror"`
	IngestConcurrency int       `yaml:"ingest_concurrency"`
	OCR               OCRConfig `yaml:"ocr"`
	Log               LogConfig `yaml:"log"`
}

// OCRConfig configures the remote OCR service.
type OCRConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | console
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		ArchiveDir:        "archive",
		Listen:            "localhost:8000",
		MaxFileMB:         50,
		BusyTimeoutMS:     10_000,
		Mirror:            true,
		IngestConcurrency: 4,
		OCR: OCRConfig{
			BaseURL: "https://api.mistral.ai",
			Model:   "mistral-ocr-latest",
			Timeout: 2 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the YAML file at path (if path is not empty), merges it over
// DefaultConfig, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// applyEnv overrides file values with ARCHIVE_DIR, ARCHIVE_LISTEN,
// OCR_API_KEY, OCR_BASE_URL, OCR_MODEL, LOG_LEVEL and ARCHIVE_MAX_FILE_MB.
func (c *Config) applyEnv() error {
	if v := os.Getenv("ARCHIVE_DIR"); v != "" {
		c.ArchiveDir = v
	}
	if v := os.Getenv("ARCHIVE_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("OCR_API_KEY"); v != "" {
		c.OCR.APIKey = v
	}
	if v := os.Getenv("OCR_BASE_URL"); v != "" {
		c.OCR.BaseURL = v
	}
	if v := os.Getenv("OCR_MODEL"); v != "" {
		c.OCR.Model = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("ARCHIVE_MAX_FILE_MB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ARCHIVE_MAX_FILE_MB: %w", err)
		}
		c.MaxFileMB = n
	}
	return nil
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.ArchiveDir == "" {
		return fmt.Errorf("archive_dir is required")
	}
	if c.MaxFileMB <= 0 {
		return fmt.Errorf("max_file_mb must be > 0")
	}
	if c.BusyTimeoutMS < 0 {
		return fmt.Errorf("busy_timeout_ms must be >= 0")
	}
	if c.IngestConcurrency <= 0 {
		return fmt.Errorf("ingest_concurrency must be > 0")
	}
	if c.OCR.Timeout <= 0 {
		return fmt.Errorf("ocr.timeout must be > 0")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format: unsupported value %q (use json or console)", c.Log.Format)
	}
	return nil
}

// MaxFileBytes returns max upload size in bytes.
func (c *Config) MaxFileBytes() int64 { return int64(c.MaxFileMB) * 1024 * 1024 }

// DBPath returns the path of the catalog database.
func (c *Config) DBPath() string { return filepath.Join(c.ArchiveDir, "archive.db") }

// DocumentsDir returns the blob directory.
func (c *Config) DocumentsDir() string { return filepath.Join(c.ArchiveDir, "documents") }

// MirrorPath returns the Bleve mirror directory.
func (c *Config) MirrorPath() string { return filepath.Join(c.ArchiveDir, "bleve") }
