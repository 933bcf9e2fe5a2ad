// Package cache provides the time-bounded listing cache.
//
// Directory listings are the hottest remote calls in a drive browser: the
// same folders get re-listed every time the user navigates, and folder
// transfers re-check destination listings for every file. The cache keeps
// a snapshot per listing key for a bounded freshness window so those paths
// rarely touch the remote API.
package cache

import (
	"sync"
	"time"

	"github.com/falachabt/zymupload/internal/logger"
	"github.com/falachabt/zymupload/pkg/remote"
)

// entry is one cached listing snapshot.
type entry struct {
	entries []remote.Entry
	created time.Time
}

// Config holds the cache parameters.
type Config struct {
	// MaxAge is the freshness window. Entries older than this are treated
	// as absent by Get.
	MaxAge time.Duration

	// CleanupInterval is how often the background sweep removes expired
	// entries.
	CleanupInterval time.Duration

	// Metrics receives cache observability events. Optional; nil disables
	// collection.
	Metrics CacheMetrics
}

// DefaultConfig returns the production defaults (10 minute freshness,
// sweep every minute).
func DefaultConfig() Config {
	return Config{
		MaxAge:          10 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Entries int
	Hits    uint64
	Misses  uint64
}

// ListingCache maps listing keys (folder identity plus scope) to listing
// snapshots with TTL-based expiry.
//
// Get never performs I/O and never returns an entry older than MaxAge.
// Put overwrites unconditionally (last writer wins). A periodic sweep is
// the only eviction mechanism; there is no size bound, since the entry
// count is naturally bounded by the number of folders visited in a
// session.
//
// Thread safety: all operations are protected by an RWMutex.
type ListingCache struct {
	mu      sync.RWMutex
	maxAge  time.Duration
	items   map[string]*entry
	hits    uint64
	misses  uint64
	sweep   time.Duration
	metrics CacheMetrics
	stopCh  chan struct{}
	stopped sync.Once
}

// New creates a ListingCache. The background sweep is not started until
// StartSweeper is called.
func New(cfg Config) *ListingCache {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultConfig().MaxAge
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultConfig().CleanupInterval
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopCacheMetrics{}
	}
	return &ListingCache{
		maxAge:  cfg.MaxAge,
		items:   make(map[string]*entry),
		sweep:   cfg.CleanupInterval,
		metrics: cfg.Metrics,
		stopCh:  make(chan struct{}),
	}
}

// Get returns the cached listing for key, or ok=false on a miss. A miss
// is reported both when the key is absent and when the entry has aged out
// of the freshness window.
func (c *ListingCache) Get(key string) ([]remote.Entry, bool) {
	c.mu.RLock()
	e, exists := c.items[key]
	c.mu.RUnlock()

	if !exists || time.Since(e.created) > c.maxAge {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		c.metrics.ObserveMiss()
		return nil, false
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	c.metrics.ObserveHit()
	return e.entries, true
}

// GetStale returns the cached listing for key even if it has expired.
// Only explicit allow-stale read paths use this; default paths go through
// Get.
func (c *ListingCache) GetStale(key string) ([]remote.Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, exists := c.items[key]
	if !exists {
		return nil, false
	}
	return e.entries, true
}

// Put stores a listing snapshot, unconditionally overwriting any previous
// entry for the key.
func (c *ListingCache) Put(key string, entries []remote.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &entry{
		entries: entries,
		created: time.Now(),
	}
	c.metrics.RecordEntryCount(len(c.items))
}

// Invalidate removes the entry for key. Callers invalidate after mutating
// a folder so the next listing refetches.
func (c *ListingCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	c.metrics.RecordEntryCount(len(c.items))
}

// Clear removes every entry.
func (c *ListingCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*entry)
	c.metrics.RecordEntryCount(0)
}

// Stats returns current entry and hit/miss counts.
func (c *ListingCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Entries: len(c.items),
		Hits:    c.hits,
		Misses:  c.misses,
	}
}

// removeExpired deletes entries older than the freshness window and
// returns how many were removed.
func (c *ListingCache) removeExpired() int {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.items {
		if now.Sub(e.created) > c.maxAge {
			delete(c.items, key)
			removed++
		}
	}
	if removed > 0 {
		c.metrics.RecordSweep(removed)
		c.metrics.RecordEntryCount(len(c.items))
	}
	return removed
}

// StartSweeper runs the periodic sweep in a goroutine until StopSweeper
// is called. The sweep holds the write lock only while deleting expired
// keys, so concurrent reads and writes are not blocked for longer than
// that.
func (c *ListingCache) StartSweeper() {
	go func() {
		ticker := time.NewTicker(c.sweep)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed := c.removeExpired(); removed > 0 {
					logger.Debug("listing cache sweep removed %d expired entries", removed)
				}
			case <-c.stopCh:
				return
			}
		}
	}()
}

// StopSweeper stops the background sweep. Safe to call more than once.
func (c *ListingCache) StopSweeper() {
	c.stopped.Do(func() {
		close(c.stopCh)
	})
}
