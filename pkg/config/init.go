package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// InitConfig writes a default configuration file to the default location.
//
// Returns the path of the written file. Fails if a config file already
// exists unless force is true.
func InitConfig(force bool) (string, error) {
	return InitConfigToPath(GetDefaultConfigPath(), force)
}

// InitConfigToPath writes a default configuration file to an explicit path,
// creating parent directories as needed.
func InitConfigToPath(path string, force bool) (string, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config file already exists at %s (use force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return path, nil
}

// generateYAMLWithComments renders a config as YAML with a descriptive
// header so a freshly generated file is self-documenting.
func generateYAMLWithComments(cfg *Config) (string, error) {
	// yaml.v3 marshals via the yaml tags; the config struct only carries
	// mapstructure tags, so marshal a key-ordered map instead.
	doc := map[string]any{
		"logging": map[string]any{
			"level":  cfg.Logging.Level,
			"format": cfg.Logging.Format,
			"output": cfg.Logging.Output,
		},
		"cache": map[string]any{
			"max_age_minutes":     cfg.Cache.MaxAgeMinutes,
			"cleanup_interval_ms": cfg.Cache.CleanupIntervalMS,
		},
		"transfer": map[string]any{
			"chunk_size_bytes":         cfg.Transfer.ChunkSizeBytes,
			"max_concurrent_transfers": cfg.Transfer.MaxConcurrentTransfers,
			"queue_size":               cfg.Transfer.QueueSize,
		},
		"remote": map[string]any{
			"type":   cfg.Remote.Type,
			"s3":     cfg.Remote.S3,
			"memory": cfg.Remote.Memory,
			"rate_limit": map[string]any{
				"requests_per_second": cfg.Remote.RateLimit.RequestsPerSecond,
				"burst":               cfg.Remote.RateLimit.Burst,
			},
		},
		"journal": map[string]any{
			"enabled": cfg.Journal.Enabled,
			"path":    cfg.Journal.Path,
		},
		"metrics": map[string]any{
			"enabled": cfg.Metrics.Enabled,
			"port":    cfg.Metrics.Port,
		},
	}

	body, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to generate config YAML: %w", err)
	}

	header := `# ZymUpload Configuration File
#
# Configuration precedence (highest to lowest):
#   1. Environment variables (ZYMUPLOAD_*)
#   2. This file
#   3. Built-in defaults
#
# Example: ZYMUPLOAD_LOGGING_LEVEL=DEBUG overrides logging.level below.

`
	return header + string(body), nil
}
