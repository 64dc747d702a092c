package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Server defaults
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.HTTPPort = 8090
	cfg.Server.GRPCPort = 9095
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	cfg.Server.StreamIntervalSeconds = 5
	cfg.Server.MaxDatasets = 32
	cfg.Server.RateLimitPerMinute = 120

	// Generator defaults
	cfg.Generator.Days = 30
	cfg.Generator.SamplesPerDay = 24
	cfg.Generator.Seed = 42
	cfg.Generator.OutlierFraction = 0.05

	// Detector defaults
	cfg.Detector.Contamination = 0.10
	cfg.Detector.NumTrees = 100
	cfg.Detector.SubSampleSize = 256
	cfg.Detector.MaxDepth = 0 // ceil(log2(sub-sample size))
	cfg.Detector.Seed = 42
	cfg.Detector.MinSamples = 10

	// Database defaults
	cfg.Database.Enabled = false
	cfg.Database.Type = "sqlite"
	cfg.Database.SQLitePath = "/var/lib/kubilitics/vitals.db"
	cfg.Database.PostgresURL = ""

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.File = ""
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 10
	cfg.Logging.MaxAgeDays = 30
	cfg.Logging.Compress = true

	// Tracing defaults
	cfg.Tracing.Endpoint = ""
	cfg.Tracing.Protocol = "http"
	cfg.Tracing.SamplingRate = 1.0

	return cfg
}
