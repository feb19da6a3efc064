// Package cache provides the two caching layers of the directory client.
//
// # Fetch cache
//
// FetchCache deduplicates fetches by request key and serves
// stale-while-revalidate data:
//
//   - at most one resolve is in flight per key; concurrent callers join it
//   - resolved data is returned immediately, without network I/O
//   - failed resolves keep the last good data and surface the error
//   - nothing is retried automatically; calling Get or Fetch again retries
//
// Basic usage:
//
//	profiles := cache.NewFetchCache[*client.ProfilePage](cache.FetchCacheConfig{
//		Name: "profiles",
//	})
//
//	desc := request.New(hash, 52, page, filters)
//	res := profiles.Get(ctx, desc.Key(), func(ctx context.Context) (*client.ProfilePage, error) {
//		return api.FetchProfiles(ctx, desc)
//	})
//	if res.Loading && !res.HasData {
//		// show a loading indicator
//	}
//
// Keys are kept for the lifetime of the cache unless MaxEntries bounds it.
//
// # Response store
//
// Store keeps raw API responses so a process (or a fleet sharing Redis) can
// skip or revalidate requests:
//
//	store := cache.NewRedisStore(redisClient)       // shared
//	store, err := cache.NewMemoryStore(cfg)         // in-process, ristretto
//
//	entry, err := cache.ResponseToEntry(resp)
//	if cache.ShouldMakeConditionalRequest(entry) {
//		cache.AddConditionalHeaders(req, entry)
//	}
//
// Expiry follows Cache-Control max-age, then Expires, then DefaultTTL.
//
// # Metrics
//
//   - directory_fetch_cache_hits_total{cache}
//   - directory_fetch_cache_misses_total{cache}
//   - directory_fetch_cache_joins_total{cache}
//   - directory_fetch_cache_failures_total{cache}
//   - directory_fetch_cache_evictions_total{cache}
//   - directory_fetch_cache_entries{cache}
//   - directory_fetch_cache_resolve_duration_seconds{cache}
//   - directory_response_store_hits_total{layer}
//   - directory_response_store_misses_total{layer}
//   - directory_response_store_errors_total{layer,operation}
//   - directory_304_responses_total
//   - directory_conditional_requests_total
package cache
