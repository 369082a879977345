// Package config loads and validates the wikigen configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Repositories []Repository    `yaml:"repositories"`
	Generator    GeneratorConfig `yaml:"generator"`
	Cache        CacheConfig     `yaml:"cache"`
	Scheduler    SchedulerConfig `yaml:"scheduler"`
	Refresh      RefreshConfig   `yaml:"refresh"`
	Server       ServerConfig    `yaml:"server"`
	Events       EventsConfig    `yaml:"events"`
	Logging      LoggingConfig   `yaml:"logging"`
}

// Repository identifies one wiki subject to generate.
type Repository struct {
	URL       string `yaml:"url"`                  // remote URL or local path
	Language  string `yaml:"language,omitempty"`   // target wiki language, default "en"
	Token     string `yaml:"token,omitempty"`      // access token for private repositories
	LocalPath string `yaml:"local_path,omitempty"` // set for host type "local"
}

// GeneratorConfig configures the content generation backend.
type GeneratorConfig struct {
	Endpoint string        `yaml:"endpoint"` // base URL of the generation service
	Provider string        `yaml:"provider,omitempty"`
	Model    string        `yaml:"model,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`

	// ExcludedDirs and ExcludedFiles accept either a YAML list or a single
	// comma-separated string with quote-aware splitting.
	ExcludedDirs  PathList `yaml:"excluded_dirs,omitempty"`
	ExcludedFiles PathList `yaml:"excluded_files,omitempty"`

	// ViewMode is "comprehensive" (generate every page) or "priority"
	// (generate only high-importance pages).
	ViewMode string `yaml:"view_mode,omitempty"`
}

// Comprehensive reports whether every page should be generated rather than
// only high-importance ones.
func (g GeneratorConfig) Comprehensive() bool {
	return g.ViewMode == ViewModeComprehensive
}

// View modes recognized by the page selection policy.
const (
	ViewModeComprehensive = "comprehensive"
	ViewModePriority      = "priority"
)

// CacheConfig selects and configures the cache store backend.
type CacheConfig struct {
	Backend string `yaml:"backend,omitempty"` // "sqlite" (default) or "nats"
	Path    string `yaml:"path,omitempty"`    // sqlite database path
	URL     string `yaml:"url,omitempty"`     // NATS server URL
	Bucket  string `yaml:"bucket,omitempty"`  // JetStream KV bucket name
}

// SchedulerConfig bounds the page generation fan-out.
type SchedulerConfig struct {
	// Workers is the number of concurrent page generations (1..4). The
	// backend shares per-provider rate limits across all pages of one
	// repository, so the default stays at 1.
	Workers int `yaml:"workers,omitempty"`
	// RatePerMinute caps generation calls per minute; 0 disables the limiter.
	RatePerMinute int `yaml:"rate_per_minute,omitempty"`
}

// RefreshConfig controls periodic regeneration in serve mode.
type RefreshConfig struct {
	Interval time.Duration `yaml:"interval,omitempty"` // 0 disables scheduled refresh
}

// ServerConfig configures the serve-mode HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// EventsConfig configures optional NATS publication of cycle events.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	URL     string `yaml:"url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level,omitempty"`
	Format LogFormat `yaml:"format,omitempty"`
}

// Load loads configuration from the specified file
func Load(configPath string) (*Config, error) {
	// Load .env files if present; provider API keys typically live there.
	// Missing files are fine.
	_ = godotenv.Load(".env", ".env.local")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Generator.Provider == "" {
		c.Generator.Provider = "google"
	}
	if c.Generator.Model == "" {
		c.Generator.Model = "gemini-1.5-pro"
	}
	if c.Generator.Timeout <= 0 {
		c.Generator.Timeout = 5 * time.Minute
	}
	if c.Generator.ViewMode == "" {
		c.Generator.ViewMode = ViewModePriority
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "sqlite"
	}
	if c.Cache.Backend == "sqlite" && c.Cache.Path == "" {
		c.Cache.Path = "wikigen-cache.db"
	}
	if c.Cache.Backend == "nats" && c.Cache.Bucket == "" {
		c.Cache.Bucket = "wikigen-cache"
	}
	if c.Scheduler.Workers <= 0 {
		c.Scheduler.Workers = 1
	}
	if c.Scheduler.Workers > 4 {
		c.Scheduler.Workers = 4
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Events.Subject == "" {
		c.Events.Subject = "wikigen.events"
	}
	c.Logging.Level = NormalizeLogLevel(string(c.Logging.Level))
	c.Logging.Format = NormalizeLogFormat(string(c.Logging.Format))
	for i := range c.Repositories {
		if c.Repositories[i].Language == "" {
			c.Repositories[i].Language = "en"
		}
	}
}

// Validate checks constraints that defaults cannot repair.
func (c *Config) Validate() error {
	if c.Generator.Endpoint == "" {
		return fmt.Errorf("generator.endpoint is required")
	}
	switch c.Generator.ViewMode {
	case ViewModeComprehensive, ViewModePriority:
	default:
		return fmt.Errorf("generator.view_mode must be %q or %q, got %q",
			ViewModeComprehensive, ViewModePriority, c.Generator.ViewMode)
	}
	switch c.Cache.Backend {
	case "sqlite", "nats":
	default:
		return fmt.Errorf("cache.backend must be \"sqlite\" or \"nats\", got %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "nats" && c.Cache.URL == "" {
		return fmt.Errorf("cache.url is required for the nats backend")
	}
	if c.Events.Enabled && c.Events.URL == "" {
		return fmt.Errorf("events.url is required when event publication is enabled")
	}
	return nil
}
