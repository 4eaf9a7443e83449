package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all PhotoForge configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Capture session policy
	Capture CaptureConfig `yaml:"capture"`

	// Reconstruction settings
	Reconstruction ReconstructionConfig `yaml:"reconstruction"`

	// Asset catalog
	Catalog CatalogConfig `yaml:"catalog"`

	// Drop-folder watcher
	Watcher WatcherConfig `yaml:"watcher"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// CaptureConfig configures capture session policy.
type CaptureConfig struct {
	// MinPhotos is the enforced minimum before a session can finish.
	// The recommended band below is advisory only.
	MinPhotos      int `yaml:"min_photos"`
	RecommendedMin int `yaml:"recommended_min"`
	RecommendedMax int `yaml:"recommended_max"`

	// TempDir is the base directory for session-scoped photo stores.
	// Empty means the OS temp directory.
	TempDir string `yaml:"temp_dir"`
}

// ReconstructionConfig configures reconstruction jobs.
type ReconstructionConfig struct {
	// DetailLevel is the default quality policy: preview, reduced, medium, full, raw.
	DetailLevel string `yaml:"detail_level"`

	// StallTimeout is how long a caller should wait without a progress
	// event before deciding to cancel. The coordinator only exposes
	// last-update times; enforcement is the caller's policy.
	StallTimeout string `yaml:"stall_timeout"`
}

// CatalogConfig configures the completed-asset catalog.
type CatalogConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// WatcherConfig configures the drop-folder photo feeder.
type WatcherConfig struct {
	// Debounce window for rapid file writes.
	Debounce string `yaml:"debounce"`

	// Extensions accepted as photos (lowercase, with dot).
	Extensions []string `yaml:"extensions"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	File   string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "PhotoForge",
		Version: "1.0.0",

		Capture: CaptureConfig{
			MinPhotos:      1,
			RecommendedMin: 20,
			RecommendedMax: 200,
			TempDir:        "",
		},

		Reconstruction: ReconstructionConfig{
			DetailLevel:  "reduced",
			StallTimeout: "120s",
		},

		Catalog: CatalogConfig{
			Enabled:      true,
			DatabasePath: "data/photoforge.db",
		},

		Watcher: WatcherConfig{
			Debounce:   "500ms",
			Extensions: []string{".jpg", ".jpeg", ".png", ".heic"},
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "photoforge.log",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("PHOTOFORGE_TEMP_DIR"); dir != "" {
		c.Capture.TempDir = dir
	}
	if path := os.Getenv("PHOTOFORGE_DB"); path != "" {
		c.Catalog.DatabasePath = path
	}
	if level := os.Getenv("PHOTOFORGE_DETAIL_LEVEL"); level != "" {
		c.Reconstruction.DetailLevel = level
	}
}

// GetStallTimeout returns the reconstruction stall timeout as a duration.
func (c *Config) GetStallTimeout() time.Duration {
	d, err := time.ParseDuration(c.Reconstruction.StallTimeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetWatcherDebounce returns the watcher debounce window as a duration.
func (c *Config) GetWatcherDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watcher.Debounce)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Capture.MinPhotos < 1 {
		return fmt.Errorf("capture.min_photos must be at least 1, got %d", c.Capture.MinPhotos)
	}
	if c.Capture.RecommendedMin > c.Capture.RecommendedMax {
		return fmt.Errorf("capture.recommended_min (%d) exceeds recommended_max (%d)",
			c.Capture.RecommendedMin, c.Capture.RecommendedMax)
	}
	switch c.Reconstruction.DetailLevel {
	case "preview", "reduced", "medium", "full", "raw":
	default:
		return fmt.Errorf("unknown reconstruction.detail_level: %q", c.Reconstruction.DetailLevel)
	}
	if c.Catalog.Enabled && c.Catalog.DatabasePath == "" {
		return fmt.Errorf("catalog.database_path required when catalog is enabled")
	}
	return nil
}
