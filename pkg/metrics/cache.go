package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/falachabt/zymupload/pkg/cache"
)

// cacheMetrics is the Prometheus implementation of cache.CacheMetrics.
//
// It collects metrics about listing cache effectiveness:
//   - Hit/miss counts
//   - Current entry count
//   - Sweep activity
type cacheMetrics struct {
	hits         prometheus.Counter
	misses       prometheus.Counter
	entries      prometheus.Gauge
	sweeps       prometheus.Counter
	sweepRemoved prometheus.Counter
}

// NewCacheMetrics creates a new Prometheus-backed CacheMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called), which
// causes the cache to use the built-in no-op implementation.
//
// This implements the cache.CacheMetrics interface from pkg/cache/cache_metrics.go.
func NewCacheMetrics() cache.CacheMetrics {
	if !IsEnabled() {
		return nil // Cache will use noopCacheMetrics
	}

	reg := GetRegistry()

	return &cacheMetrics{
		hits: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "zymupload_cache_hits_total",
				Help: "Total number of listing cache hits",
			},
		),
		misses: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "zymupload_cache_misses_total",
				Help: "Total number of listing cache misses (absent or expired)",
			},
		),
		entries: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "zymupload_cache_entries",
				Help: "Current number of cached listings",
			},
		),
		sweeps: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "zymupload_cache_sweeps_total",
				Help: "Total number of background sweeps that removed entries",
			},
		),
		sweepRemoved: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "zymupload_cache_sweep_removed_total",
				Help: "Total number of expired entries removed by sweeps",
			},
		),
	}
}

// ObserveHit implements cache.CacheMetrics.ObserveHit
func (m *cacheMetrics) ObserveHit() {
	m.hits.Inc()
}

// ObserveMiss implements cache.CacheMetrics.ObserveMiss
func (m *cacheMetrics) ObserveMiss() {
	m.misses.Inc()
}

// RecordEntryCount implements cache.CacheMetrics.RecordEntryCount
func (m *cacheMetrics) RecordEntryCount(count int) {
	m.entries.Set(float64(count))
}

// RecordSweep implements cache.CacheMetrics.RecordSweep
func (m *cacheMetrics) RecordSweep(removed int) {
	m.sweeps.Inc()
	m.sweepRemoved.Add(float64(removed))
}
