// Package loader populates the listing cache from the remote store
// without blocking the caller.
//
// The UI-facing path uses LoadAsync: the fetch runs on its own goroutine
// and the result (entries or a failure reason) is delivered on a channel,
// so an interface thread never stalls on network I/O. Transfer workers,
// which are already off the interface path, use the synchronous
// ListCached helper for destination duplicate checks.
package loader

import (
	"context"

	"github.com/falachabt/zymupload/internal/logger"
	"github.com/falachabt/zymupload/pkg/cache"
	"github.com/falachabt/zymupload/pkg/remote"
)

// Result is the outcome of one asynchronous listing load. A fetch failure
// is reported here as a miss-with-reason; it never panics the loader or
// poisons the cache.
type Result struct {
	Key     string
	Entries []remote.Entry
	Err     error
}

// Loader fetches folder listings and keeps the cache warm.
type Loader struct {
	store remote.Store
	cache *cache.ListingCache
}

// New creates a Loader over the given store and cache.
func New(store remote.Store, c *cache.ListingCache) *Loader {
	return &Loader{store: store, cache: c}
}

// ListCached returns the listing for a folder, serving from cache when
// fresh and fetching (then caching) otherwise. Blocking; intended for
// worker goroutines.
func (l *Loader) ListCached(ctx context.Context, folderID string) ([]remote.Entry, error) {
	if entries, ok := l.cache.Get(folderID); ok {
		return entries, nil
	}
	entries, err := l.store.ListChildren(ctx, folderID)
	if err != nil {
		return nil, err
	}
	l.cache.Put(folderID, entries)
	return entries, nil
}

// LoadAsync fetches a folder listing on a new goroutine, stores it in the
// cache on success and delivers the result on the returned channel
// (buffered, so the loader never blocks on a slow receiver).
//
// Concurrent loads for the same key are not deduplicated: the cache's Put
// is last-writer-wins, so duplicate in-flight fetches are wasteful but
// harmless.
func (l *Loader) LoadAsync(ctx context.Context, folderID string) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		entries, err := l.store.ListChildren(ctx, folderID)
		if err != nil {
			logger.Debug("listing load for %s failed: %v", folderID, err)
			out <- Result{Key: folderID, Err: err}
			return
		}
		l.cache.Put(folderID, entries)
		out <- Result{Key: folderID, Entries: entries}
	}()
	return out
}

// Invalidate drops the cached listing for a folder. Callers invoke this
// after a mutating remote operation on that folder.
func (l *Loader) Invalidate(folderID string) {
	l.cache.Invalidate(folderID)
}
