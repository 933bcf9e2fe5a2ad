// This file contains metrics-related types for observability of listing
// cache operations.
package cache

// CacheMetrics provides observability for listing cache operations.
//
// Implementations can use this interface to collect metrics about cache
// effectiveness and sweep activity. This is optional - if not provided,
// metrics collection is skipped.
//
// Example implementations:
//   - Prometheus metrics
//   - In-memory counters for testing
type CacheMetrics interface {
	// ObserveHit records a lookup satisfied from the cache
	ObserveHit()

	// ObserveMiss records a lookup that found no fresh entry
	ObserveMiss()

	// RecordEntryCount records the current number of cached listings
	RecordEntryCount(count int)

	// RecordSweep records a background sweep and how many entries it removed
	RecordSweep(removed int)
}

// noopCacheMetrics is a default no-op metrics implementation
type noopCacheMetrics struct{}

func (noopCacheMetrics) ObserveHit()             {}
func (noopCacheMetrics) ObserveMiss()            {}
func (noopCacheMetrics) RecordEntryCount(n int)  {}
func (noopCacheMetrics) RecordSweep(removed int) {}
