package remote

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// RateLimitedStore wraps a Store and paces every remote API call with a
// token bucket.
//
// Cloud drive APIs throttle aggressively once a client exceeds its request
// quota, and a folder transfer can easily issue hundreds of calls per
// second from concurrent workers. The limiter smooths that burst into a
// sustained rate while still allowing short spikes up to the configured
// burst size.
//
// Each operation waits for one token before hitting the backend; the wait
// respects context cancellation, so a cancelled transfer never sits in the
// limiter queue.
type RateLimitedStore struct {
	store   Store
	limiter *rate.Limiter
}

// NewRateLimitedStore wraps store with a token bucket of requestsPerSecond
// sustained rate and burst capacity.
//
// requestsPerSecond = 0 disables limiting (an effectively infinite rate is
// used so the decorator stays transparent).
func NewRateLimitedStore(store Store, requestsPerSecond, burst int) *RateLimitedStore {
	if requestsPerSecond <= 0 {
		return &RateLimitedStore{
			store:   store,
			limiter: rate.NewLimiter(rate.Inf, 0),
		}
	}
	if burst <= 0 {
		burst = requestsPerSecond
	}
	return &RateLimitedStore{
		store:   store,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

func (s *RateLimitedStore) wait(ctx context.Context) error {
	return s.limiter.Wait(ctx)
}

// RootID is a local accessor, not an API call; it bypasses the limiter.
func (s *RateLimitedStore) RootID() string {
	return s.store.RootID()
}

func (s *RateLimitedStore) ListChildren(ctx context.Context, folderID string) ([]Entry, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.store.ListChildren(ctx, folderID)
}

func (s *RateLimitedStore) GetMetadata(ctx context.Context, id string) (Entry, error) {
	if err := s.wait(ctx); err != nil {
		return Entry{}, err
	}
	return s.store.GetMetadata(ctx, id)
}

func (s *RateLimitedStore) Download(ctx context.Context, fileID string, w io.Writer, progress ProgressFunc) (int64, error) {
	if err := s.wait(ctx); err != nil {
		return 0, err
	}
	return s.store.Download(ctx, fileID, w, progress)
}

func (s *RateLimitedStore) Upload(ctx context.Context, parentID, name string, r io.Reader, size int64, progress ProgressFunc) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	return s.store.Upload(ctx, parentID, name, r, size, progress)
}

func (s *RateLimitedStore) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	return s.store.CreateFolder(ctx, parentID, name)
}

func (s *RateLimitedStore) Delete(ctx context.Context, id string, permanent bool) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	return s.store.Delete(ctx, id, permanent)
}

func (s *RateLimitedStore) Rename(ctx context.Context, id, newName string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	return s.store.Rename(ctx, id, newName)
}

func (s *RateLimitedStore) Search(ctx context.Context, query string) ([]Entry, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.store.Search(ctx, query)
}
