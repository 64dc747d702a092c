package config

import (
	"fmt"
	"net/url"

	"go.uber.org/zap/zapcore"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	// Validate server configuration
	for field, port := range map[string]int{"server.http_port": c.Server.HTTPPort, "server.grpc_port": c.Server.GRPCPort} {
		if port < 1 || port > 65535 {
			errs = append(errs, &ValidationError{
				Field:   field,
				Message: fmt.Sprintf("port must be between 1 and 65535, got %d", port),
			})
		}
	}
	if c.Server.HTTPPort == c.Server.GRPCPort {
		errs = append(errs, &ValidationError{
			Field:   "server.grpc_port",
			Message: fmt.Sprintf("grpc_port must differ from http_port (%d)", c.Server.HTTPPort),
		})
	}
	if c.Server.StreamIntervalSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "server.stream_interval_seconds",
			Message: fmt.Sprintf("stream interval must be at least 1 second, got %d", c.Server.StreamIntervalSeconds),
		})
	}
	if c.Server.RateLimitPerMinute < 0 {
		errs = append(errs, &ValidationError{
			Field:   "server.rate_limit_per_minute",
			Message: fmt.Sprintf("rate limit must not be negative, got %d", c.Server.RateLimitPerMinute),
		})
	}
	if c.Server.MaxDatasets < 1 {
		errs = append(errs, &ValidationError{
			Field:   "server.max_datasets",
			Message: fmt.Sprintf("max_datasets must be positive, got %d", c.Server.MaxDatasets),
		})
	}

	// Validate generator configuration
	if c.Generator.Days < 1 {
		errs = append(errs, &ValidationError{
			Field:   "generator.days",
			Message: fmt.Sprintf("days must be at least 1, got %d", c.Generator.Days),
		})
	}
	if c.Generator.SamplesPerDay < 1 {
		errs = append(errs, &ValidationError{
			Field:   "generator.samples_per_day",
			Message: fmt.Sprintf("samples_per_day must be at least 1, got %d", c.Generator.SamplesPerDay),
		})
	}
	if c.Generator.OutlierFraction < 0 || c.Generator.OutlierFraction >= 1 {
		errs = append(errs, &ValidationError{
			Field:   "generator.outlier_fraction",
			Message: fmt.Sprintf("outlier_fraction must be in [0,1), got %v", c.Generator.OutlierFraction),
		})
	}

	// Validate detector configuration
	if c.Detector.Contamination <= 0 || c.Detector.Contamination >= 1 {
		errs = append(errs, &ValidationError{
			Field:   "detector.contamination",
			Message: fmt.Sprintf("contamination must be in (0,1), got %v", c.Detector.Contamination),
		})
	}
	if c.Detector.NumTrees < 1 {
		errs = append(errs, &ValidationError{
			Field:   "detector.num_trees",
			Message: fmt.Sprintf("num_trees must be positive, got %d", c.Detector.NumTrees),
		})
	}
	if c.Detector.SubSampleSize < 1 {
		errs = append(errs, &ValidationError{
			Field:   "detector.sub_sample_size",
			Message: fmt.Sprintf("sub_sample_size must be positive, got %d", c.Detector.SubSampleSize),
		})
	}
	if c.Detector.MaxDepth < 0 {
		errs = append(errs, &ValidationError{
			Field:   "detector.max_depth",
			Message: fmt.Sprintf("max_depth must not be negative, got %d", c.Detector.MaxDepth),
		})
	}
	if c.Detector.MinSamples < 1 {
		errs = append(errs, &ValidationError{
			Field:   "detector.min_samples",
			Message: fmt.Sprintf("min_samples must be positive, got %d", c.Detector.MinSamples),
		})
	}

	// Validate database configuration
	if c.Database.Enabled {
		switch c.Database.Type {
		case "sqlite":
			if c.Database.SQLitePath == "" {
				errs = append(errs, &ValidationError{
					Field:   "database.sqlite_path",
					Message: "sqlite_path is required when database type is sqlite",
				})
			}
		case "postgres":
			if c.Database.PostgresURL == "" {
				errs = append(errs, &ValidationError{
					Field:   "database.postgres_url",
					Message: "postgres_url is required when database type is postgres",
				})
			} else if _, err := url.Parse(c.Database.PostgresURL); err != nil {
				errs = append(errs, &ValidationError{
					Field:   "database.postgres_url",
					Message: fmt.Sprintf("invalid postgres URL: %v", err),
				})
			}
		default:
			errs = append(errs, &ValidationError{
				Field:   "database.type",
				Message: fmt.Sprintf("invalid database type '%s', must be one of: sqlite, postgres", c.Database.Type),
			})
		}
	}

	// Validate logging configuration
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format '%s', must be one of: json, text", c.Logging.Format),
		})
	}

	// Validate tracing configuration
	if c.Tracing.Protocol != "grpc" && c.Tracing.Protocol != "http" {
		errs = append(errs, &ValidationError{
			Field:   "tracing.protocol",
			Message: fmt.Sprintf("invalid protocol '%s', must be one of: grpc, http", c.Tracing.Protocol),
		})
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		errs = append(errs, &ValidationError{
			Field:   "tracing.sampling_rate",
			Message: fmt.Sprintf("sampling_rate must be in [0,1], got %v", c.Tracing.SamplingRate),
		})
	}

	return errs
}
