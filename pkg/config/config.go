package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete ZymUpload configuration.
//
// This structure captures all configurable aspects of the transfer engine
// including:
//   - Logging configuration
//   - Listing cache tuning (TTL and sweep interval)
//   - Transfer execution settings (chunk size, worker pool)
//   - Remote store selection and type-specific configuration
//   - Transfer history journal
//   - Prometheus metrics collection
//
// Configuration sources (in order of precedence):
//  1. Environment variables (ZYMUPLOAD_*)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
//
// Store Configuration Pattern:
// Each remote store implementation defines its own options. The Config
// struct contains type-specific sections (remote.s3, remote.memory) and
// only the section matching the selected type is used.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Cache tunes the folder listing cache
	Cache CacheConfig `mapstructure:"cache"`

	// Transfer tunes transfer execution
	Transfer TransferConfig `mapstructure:"transfer"`

	// Remote specifies the remote store type and type-specific configuration
	Remote RemoteConfig `mapstructure:"remote"`

	// Journal configures the persistent transfer history
	Journal JournalConfig `mapstructure:"journal"`

	// Metrics configures Prometheus metrics collection
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// CacheConfig tunes the folder listing cache.
type CacheConfig struct {
	// MaxAgeMinutes is how long a cached listing stays valid
	MaxAgeMinutes int `mapstructure:"max_age_minutes" validate:"required,gt=0"`

	// CleanupIntervalMS is how often the background sweeper removes
	// expired entries, in milliseconds
	CleanupIntervalMS int `mapstructure:"cleanup_interval_ms" validate:"required,gt=0"`
}

// TransferConfig tunes transfer execution.
type TransferConfig struct {
	// ChunkSizeBytes is the read/write chunk size for streaming transfers
	ChunkSizeBytes int64 `mapstructure:"chunk_size_bytes" validate:"required,gt=0"`

	// MaxConcurrentTransfers bounds the worker pool
	MaxConcurrentTransfers int `mapstructure:"max_concurrent_transfers" validate:"required,gt=0"`

	// QueueSize is the dispatch queue capacity
	QueueSize int `mapstructure:"queue_size" validate:"gte=0"`
}

// RemoteConfig specifies remote store configuration.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific configuration section is used.
type RemoteConfig struct {
	// Type specifies which remote store implementation to use
	// Valid values: s3, memory
	Type string `mapstructure:"type" validate:"required,oneof=s3 memory"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory"`

	// RateLimit throttles remote API calls
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig throttles remote API calls.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained request rate; 0 disables limiting
	RequestsPerSecond int `mapstructure:"requests_per_second" validate:"gte=0"`

	// Burst is the maximum burst size above the sustained rate
	Burst int `mapstructure:"burst" validate:"gte=0"`
}

// JournalConfig configures the persistent transfer history.
type JournalConfig struct {
	// Enabled turns the history journal on
	Enabled bool `mapstructure:"enabled"`

	// Path is the directory where the journal database lives
	Path string `mapstructure:"path"`
}

// MetricsConfig configures Prometheus metrics collection.
type MetricsConfig struct {
	// Enabled turns metrics collection and the HTTP endpoint on
	Enabled bool `mapstructure:"enabled"`

	// Port is the HTTP port serving /metrics
	Port int `mapstructure:"port" validate:"gte=0,lte=65535"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (ZYMUPLOAD_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Configure viper
	setupViper(v, configPath)

	// Read configuration file if it exists
	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Set up environment variable support
	// Environment variables use ZYMUPLOAD_ prefix and underscores
	// Example: ZYMUPLOAD_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("ZYMUPLOAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Configure config file search
	if configPath != "" {
		// Use explicitly specified config file
		v.SetConfigFile(configPath)
	} else {
		// Use default location: $XDG_CONFIG_HOME/zymupload/config.yaml
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		// Check if error is "config file not found"
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return nil
		}
		// Other errors are problems
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	// Check XDG_CONFIG_HOME
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "zymupload")
	}

	// Fall back to ~/.config
	home, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, use current directory as last resort
		return "."
	}

	return filepath.Join(home, ".config", "zymupload")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
