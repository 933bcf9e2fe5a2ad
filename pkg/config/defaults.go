package config

import "strings"

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Store-specific defaults are handled by store implementations
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyCacheDefaults(&cfg.Cache)
	applyTransferDefaults(&cfg.Transfer)
	applyRemoteDefaults(&cfg.Remote)
	applyJournalDefaults(&cfg.Journal)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyCacheDefaults sets listing cache defaults.
func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.MaxAgeMinutes == 0 {
		cfg.MaxAgeMinutes = 10
	}
	if cfg.CleanupIntervalMS == 0 {
		cfg.CleanupIntervalMS = 60000 // 1 minute
	}
}

// applyTransferDefaults sets transfer execution defaults.
func applyTransferDefaults(cfg *TransferConfig) {
	if cfg.ChunkSizeBytes == 0 {
		cfg.ChunkSizeBytes = 1048576 // 1MB
	}
	if cfg.MaxConcurrentTransfers == 0 {
		cfg.MaxConcurrentTransfers = 3
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 128
	}
}

// applyRemoteDefaults sets remote store defaults.
func applyRemoteDefaults(cfg *RemoteConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}

	// Initialize maps if nil
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}

	// Apply defaults for all store types (for config file generation)
	if _, ok := cfg.S3["region"]; !ok {
		cfg.S3["region"] = "us-east-1"
	}
	if _, ok := cfg.S3["bucket"]; !ok {
		cfg.S3["bucket"] = ""
	}

	// RateLimit defaults to disabled (0 requests per second).
	// A configured rate without a burst gets a burst equal to the rate.
	if cfg.RateLimit.RequestsPerSecond > 0 && cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = cfg.RateLimit.RequestsPerSecond
	}
}

// applyJournalDefaults sets journal defaults.
func applyJournalDefaults(cfg *JournalConfig) {
	// Enabled defaults to false

	if cfg.Path == "" {
		cfg.Path = "/tmp/zymupload-journal"
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false

	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Logging: LoggingConfig{},
		Cache:   CacheConfig{},
		Transfer: TransferConfig{},
		Remote: RemoteConfig{
			S3:     make(map[string]any),
			Memory: make(map[string]any),
		},
		Journal: JournalConfig{},
		Metrics: MetricsConfig{},
	}

	ApplyDefaults(cfg)
	return cfg
}
