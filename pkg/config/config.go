// Package config loads the optional drvscan.yaml configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/northcutted/drvscan/pkg/watchlist"
)

// DefaultFile is picked up from the working directory when --config is not set.
const DefaultFile = "drvscan.yaml"

// Output formats.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatText     = "text"
)

// Config mirrors drvscan.yaml.
type Config struct {
	// Imports is a path to a JSON watchlist, resolved relative to the config file.
	Imports string `yaml:"imports"`
	// Watchlist lists names inline and takes precedence over Imports.
	Watchlist []string  `yaml:"watchlist"`
	Workers   int       `yaml:"workers"`
	CacheSize *int      `yaml:"cache_size"`
	Format    string    `yaml:"format"`
	Output    string    `yaml:"output"`
	Log       LogConfig `yaml:"log"`
}

// LogConfig configures logging and optional log file rotation.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Load reads and validates the config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	if cfg.Imports != "" && !filepath.IsAbs(cfg.Imports) {
		cfg.Imports = filepath.Join(filepath.Dir(path), cfg.Imports)
	}
	return cfg, nil
}

// Parse decodes YAML config data, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Format == "" {
		c.Format = FormatJSON
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 10
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 28
	}
}

// Validate checks field values.
func (c *Config) Validate() error {
	if !ValidFormat(c.Format) {
		return fmt.Errorf("unknown format %q (want %s, %s or %s)", c.Format, FormatJSON, FormatMarkdown, FormatText)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.CacheSize != nil && *c.CacheSize < 0 {
		return fmt.Errorf("cache_size must not be negative, got %d", *c.CacheSize)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}

// ValidFormat reports whether f names a supported output format.
func ValidFormat(f string) bool {
	switch f {
	case FormatJSON, FormatMarkdown, FormatText:
		return true
	}
	return false
}

// ResolveWatchlist returns the watchlist selected by the config: inline names,
// then the imports file, then nil when neither is set.
func (c *Config) ResolveWatchlist() (*watchlist.ImportSet, error) {
	if c == nil {
		return nil, nil
	}
	if len(c.Watchlist) > 0 {
		return watchlist.New(c.Watchlist...), nil
	}
	if c.Imports != "" {
		return watchlist.Load(c.Imports)
	}
	return nil, nil
}
