package config

import "context"

// Package config provides configuration management for kubilitics-vitals.
//
// Configuration Sources (priority order, high to low):
//   1. CLI flags (highest priority)
//   2. Environment variables (VITALS_* prefix, dots become underscores)
//   3. YAML config file (optional)
//   4. Built-in defaults (lowest priority)
//
// Main Configuration Sections:
//
//   1. Server
//      - host, http_port (default 8090), grpc_port (default 9095)
//      - allowed_origins: CORS and WebSocket origins
//      - stream_interval_seconds: real-time stream tick
//      - max_datasets: session store capacity
//      - rate_limit_per_minute: per-client API budget (0 disables)
//
//   2. Generator
//      - days, samples_per_day, seed, outlier_fraction
//
//   3. Detector
//      - contamination, num_trees, sub_sample_size, max_depth, seed, min_samples
//
//   4. Database
//      - enabled, type: "sqlite" | "postgres", sqlite_path, postgres_url
//
//   5. Logging
//      - level, format: "json" | "text", file with rotation settings
//
//   6. Tracing
//      - endpoint (empty disables), protocol: "grpc" | "http", sampling_rate

// Config struct contains all configuration fields
type Config struct {
	// Server configuration
	Server struct {
		Host     string
		HTTPPort int
		GRPCPort int
		// AllowedOrigins lists origins permitted for CORS and WebSocket upgrades.
		// Use ["*"] to allow any origin (development only).
		AllowedOrigins        []string
		StreamIntervalSeconds int
		MaxDatasets           int
		RateLimitPerMinute    int
	}

	// Synthetic data generation defaults
	Generator struct {
		Days            int
		SamplesPerDay   int
		Seed            int64
		OutlierFraction float64
	}

	// Anomaly detector configuration
	Detector struct {
		Contamination float64
		NumTrees      int
		SubSampleSize int
		MaxDepth      int
		Seed          int64
		MinSamples    int
	}

	// Database configuration
	Database struct {
		Enabled     bool
		Type        string
		SQLitePath  string
		PostgresURL string
	}

	// Logging configuration
	Logging struct {
		Level      string
		Format     string
		File       string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
		Compress   bool
	}

	// Tracing configuration
	Tracing struct {
		Endpoint     string
		Protocol     string
		SamplingRate float64
	}
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration file changes and reloads.
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources.
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager. An empty path means
// defaults and environment only.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}
