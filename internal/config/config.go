// Package config loads rpgexplain settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the project-level configuration file.
const FileName = "rpgexplain.yaml"

// Config holds all configuration for rpgexplain.
type Config struct {
	Discover DiscoverConfig `yaml:"discover"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Cache    CacheConfig    `yaml:"cache"`
	Report   ReportConfig   `yaml:"report"`
}

// DiscoverConfig controls which members are read from directories.
type DiscoverConfig struct {
	Includes    []string `yaml:"includes"`
	Excludes    []string `yaml:"excludes"`
	MaxFileSize int64    `yaml:"max_file_size"` // bytes, 0 = unlimited
}

// AnalysisConfig controls the per-unit pass.
type AnalysisConfig struct {
	Workers int `yaml:"workers"` // 0 = one per CPU
}

// CacheConfig controls the persistent record cache.
type CacheConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"` // relative paths resolve against the config directory
	MemoryEntries int    `yaml:"memory_entries"`
}

// ReportConfig controls report generation.
type ReportConfig struct {
	Model           string  `yaml:"model"`
	Temperature     float32 `yaml:"temperature"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`
	APIKeyEnv       string  `yaml:"api_key_env"` // environment variable holding the API key
	IncludeSource   bool    `yaml:"include_source"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Discover: DiscoverConfig{
			Includes:    []string{"**/*"},
			Excludes:    []string{"**/.git/**", "**/node_modules/**", "**/.rpgexplain/**"},
			MaxFileSize: 1_000_000,
		},
		Analysis: AnalysisConfig{
			Workers: 0,
		},
		Cache: CacheConfig{
			Enabled:       false,
			Path:          filepath.Join(".rpgexplain", "cache.db"),
			MemoryEntries: 256,
		},
		Report: ReportConfig{
			Model:           "gemini-2.5-pro",
			Temperature:     0.2,
			MaxOutputTokens: 8192,
			APIKeyEnv:       "GEMINI_API_KEY",
			IncludeSource:   true,
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if cfg.Cache.Path != "" && !filepath.IsAbs(cfg.Cache.Path) {
		cfg.Cache.Path = filepath.Join(filepath.Dir(path), cfg.Cache.Path)
	}
	return cfg, nil
}

// LoadFromDir looks for rpgexplain.yaml, then .rpgexplain/config.yaml, in
// dir.
func LoadFromDir(dir string) (*Config, error) {
	for _, path := range []string{
		filepath.Join(dir, FileName),
		filepath.Join(dir, ".rpgexplain", "config.yaml"),
	} {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	cfg := DefaultConfig()
	cfg.Cache.Path = filepath.Join(dir, cfg.Cache.Path)
	return cfg, nil
}

// Validate reports settings outside their accepted ranges.
func (c *Config) Validate() error {
	switch {
	case c.Discover.MaxFileSize < 0:
		return fmt.Errorf("discover.max_file_size must not be negative")
	case c.Analysis.Workers < 0:
		return fmt.Errorf("analysis.workers must not be negative")
	case c.Cache.MemoryEntries < 0:
		return fmt.Errorf("cache.memory_entries must not be negative")
	case c.Report.Temperature < 0 || c.Report.Temperature > 2:
		return fmt.Errorf("report.temperature must be between 0 and 2")
	case c.Report.MaxOutputTokens <= 0:
		return fmt.Errorf("report.max_output_tokens must be positive")
	}
	return nil
}

// APIKey returns the report API key from the configured environment
// variable.
func (c *Config) APIKey() string {
	if c.Report.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Report.APIKeyEnv)
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Save writes the configuration to path, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
