package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment  string             `toml:"environment"` // "development" or "production"
	Server       ServerConfig       `toml:"server"`
	Storage      StorageConfig      `toml:"storage"`
	Logging      LoggingConfig      `toml:"logging"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Maintenance  MaintenanceConfig  `toml:"maintenance"`
	Catalog      CatalogConfig      `toml:"catalog"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs
}

// OrchestratorConfig controls prepare run promotion and slot leasing
type OrchestratorConfig struct {
	Workers        int           `toml:"workers" validate:"gte=1"`          // Dispatcher worker count
	QueueDepth     int           `toml:"queue_depth" validate:"gte=1"`      // Dispatcher backlog before submits are dropped
	QueueScanLimit int           `toml:"queue_scan_limit" validate:"gte=1"` // How many prepare:queued events to scan per promotion
	LeaseTTL       time.Duration `toml:"lease_ttl"`                         // Slot lease age before the sweep may reclaim it
}

// MaintenanceConfig controls the slot reconciliation sweep
type MaintenanceConfig struct {
	SweepSchedule  string        `toml:"sweep_schedule"`   // Cron schedule for the reconciliation sweep
	SweepOnStartup bool          `toml:"sweep_on_startup"` // Run one sweep during app startup
	PublishWindow  time.Duration `toml:"publish_window"`   // Rolling window for the publish_in_progress blocker
}

// CatalogConfig configures the external catalog client and retry policy
type CatalogConfig struct {
	BaseURL        string        `toml:"base_url"`
	APIKey         string        `toml:"api_key"`
	Namespace      string        `toml:"namespace"` // Metafield namespace for vendo-owned markers
	RateLimit      float64       `toml:"rate_limit" validate:"gte=0"`
	Timeout        time.Duration `toml:"timeout"`
	MaxAttempts    int           `toml:"max_attempts" validate:"gte=1"` // Retry budget per external call
	RetryBaseDelay time.Duration `toml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `toml:"retry_max_delay"`
}

// DefaultConfig returns a configuration with sane defaults
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/vendo",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05.000",
		},
		Orchestrator: OrchestratorConfig{
			Workers:        4,
			QueueDepth:     64,
			QueueScanLimit: 10,
			LeaseTTL:       30 * time.Minute,
		},
		Maintenance: MaintenanceConfig{
			SweepSchedule:  "*/5 * * * *",
			SweepOnStartup: true,
			PublishWindow:  5 * time.Minute,
		},
		Catalog: CatalogConfig{
			Namespace:      "vendo",
			RateLimit:      2,
			Timeout:        30 * time.Second,
			MaxAttempts:    5,
			RetryBaseDelay: time.Second,
			RetryMaxDelay:  30 * time.Second,
		},
	}
}

// LoadFromFiles loads configuration from defaults, then each TOML file in
// order (later files override earlier ones), then environment variables.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies VENDO_* environment variable overrides
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("VENDO_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("VENDO_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("VENDO_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("VENDO_BADGER_PATH"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("VENDO_CATALOG_BASE_URL"); v != "" {
		config.Catalog.BaseURL = v
	}
	if v := os.Getenv("VENDO_CATALOG_API_KEY"); v != "" {
		config.Catalog.APIKey = v
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks structural constraints on the configuration
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
