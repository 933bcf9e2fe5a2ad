package config

import (
	"github.com/falachabt/zymupload/pkg/cache"
	"github.com/falachabt/zymupload/pkg/metrics"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// CacheMetrics is the collector for the listing cache (nil if disabled,
	// which makes the cache fall back to its no-op implementation)
	CacheMetrics cache.CacheMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns nil collectors (components use no-op implementations)
//
// Parameters:
//   - cfg: The complete ZymUpload configuration
//
// Returns:
//   - MetricsResult containing all metrics components
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		// Metrics disabled - components fall back to no-op implementations
		return &MetricsResult{}
	}

	// Initialize global Prometheus registry
	metrics.InitRegistry()

	// Create metrics HTTP server
	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Metrics.Port,
	})

	return &MetricsResult{
		Server:       server,
		CacheMetrics: metrics.NewCacheMetrics(),
	}
}
