package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// StaleRetention is how long a store keeps an entry past its expiry so it
// can still be revalidated with a conditional request.
const StaleRetention = time.Hour

var (
	// ErrCacheMiss indicates the requested key was not found in the store
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the stored entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrFlightLost indicates a fetch was joined after its flight was gone.
	// FetchCache only joins pending entries, so seeing it means a bug.
	ErrFlightLost = errors.New("in-flight fetch lost")
)

// Store keeps raw API responses between requests.
//
// Get returns expired entries too (until StaleRetention runs out) so callers
// can revalidate them; check IsExpired before serving one without a request.
type Store interface {
	Get(ctx context.Context, key ResponseKey) (*ResponseEntry, error)
	Set(ctx context.Context, key ResponseKey, entry *ResponseEntry) error
	Delete(ctx context.Context, key ResponseKey) error
}

// retentionTTL is the storage lifetime of an entry: its freshness plus the
// stale retention window.
func retentionTTL(entry *ResponseEntry) time.Duration {
	return entry.TTL() + StaleRetention
}

func errFlightLost(key string) error {
	return fmt.Errorf("%w: %s", ErrFlightLost, key)
}
