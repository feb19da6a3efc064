package cache

import (
	"container/list"
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Status is the lifecycle state of a fetch cache entry.
type Status string

const (
	// StatusPending means a resolve is in flight for the key.
	StatusPending Status = "pending"

	// StatusResolved means the last resolve succeeded.
	StatusResolved Status = "resolved"

	// StatusFailed means the last resolve returned an error.
	StatusFailed Status = "failed"
)

// ResolveFunc performs the actual fetch for a key.
type ResolveFunc[V any] func(ctx context.Context) (V, error)

// Entry is a snapshot of one cached key.
type Entry[V any] struct {
	Key    string
	Status Status

	// Data is the last successfully resolved value. It survives later
	// failures and revalidations; HasData tells a zero value from no value.
	Data    V
	HasData bool

	// Err is the error of the last failed resolve. It is cleared on success.
	Err error

	UpdatedAt time.Time
}

// Result is what a caller renders: the freshest data available, the last
// error and whether a fetch is still running.
type Result[V any] struct {
	Data    V
	HasData bool
	Err     error
	Loading bool
}

// FetchCacheConfig holds fetch cache configuration.
type FetchCacheConfig struct {
	// Name labels the cache in metrics and logs.
	Name string

	// MaxEntries bounds the number of keys (least recently used go first).
	// Pending entries are never evicted. 0 keeps every key for the lifetime
	// of the cache.
	MaxEntries int

	// Logger defaults to a "fetch-cache" component logger.
	Logger *zerolog.Logger
}

type fetchEntry[V any] struct {
	Entry[V]
	gen  uint64
	elem *list.Element
}

// FetchCache deduplicates and caches fetches by request key.
//
// There is never more than one resolve in flight per key: callers asking for
// a pending key join the running call. Resolved data is served as-is until
// the caller asks for a revalidation, and stays visible while that
// revalidation or a failed retry runs. FetchCache is safe for concurrent use.
type FetchCache[V any] struct {
	name       string
	maxEntries int
	logger     zerolog.Logger

	mu      sync.Mutex
	entries map[string]*fetchEntry[V]
	lru     *list.List
	seq     uint64
	group   singleflight.Group
}

// NewFetchCache creates an empty fetch cache.
func NewFetchCache[V any](cfg FetchCacheConfig) *FetchCache[V] {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.MaxEntries < 0 {
		cfg.MaxEntries = 0
	}

	logger := log.With().Str("component", "fetch-cache").Str("cache", cfg.Name).Logger()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("cache", cfg.Name).Logger()
	}

	return &FetchCache[V]{
		name:       cfg.Name,
		maxEntries: cfg.MaxEntries,
		logger:     logger,
		entries:    make(map[string]*fetchEntry[V]),
		lru:        list.New(),
	}
}

// Get returns the current state of key without blocking.
//
// A missing key starts a resolve and reports Loading. A pending key joins
// the running resolve. A resolved key is returned as cached. A failed key
// returns its last good data and error and starts a new resolve: re-invoking
// Get is how callers retry.
func (c *FetchCache[V]) Get(ctx context.Context, key string, resolve ResolveFunc[V]) Result[V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	switch {
	case !ok:
		e = c.insertLocked(key)
		c.startLocked(ctx, e, resolve)
	case e.Status == StatusPending:
		FetchCacheJoins.WithLabelValues(c.name).Inc()
		c.logger.Debug().Str("key", key).Msg("Joining in-flight fetch")
	case e.Status == StatusFailed:
		c.logger.Debug().Str("key", key).Err(e.Err).Msg("Retrying failed fetch")
		c.startLocked(ctx, e, resolve)
	default:
		FetchCacheHits.WithLabelValues(c.name).Inc()
	}

	c.touchLocked(e)
	return e.result()
}

// Fetch resolves key and waits for the outcome.
//
// Resolved keys return immediately. Pending keys are joined, everything else
// starts a resolve. ctx bounds the wait only: a caller that gives up leaves
// the resolve running, and its result still lands in the cache. On failure
// the last good data for key, if any, is returned alongside the error.
func (c *FetchCache[V]) Fetch(ctx context.Context, key string, resolve ResolveFunc[V]) (V, error) {
	c.mu.Lock()

	var ch <-chan singleflight.Result
	e, ok := c.entries[key]
	switch {
	case !ok:
		e = c.insertLocked(key)
		ch = c.startLocked(ctx, e, resolve)
	case e.Status == StatusPending:
		FetchCacheJoins.WithLabelValues(c.name).Inc()
		ch = c.joinLocked(e)
	case e.Status == StatusFailed:
		ch = c.startLocked(ctx, e, resolve)
	default:
		FetchCacheHits.WithLabelValues(c.name).Inc()
		c.touchLocked(e)
		data := e.Data
		c.mu.Unlock()
		return data, nil
	}
	c.touchLocked(e)
	stale, hasStale := e.Data, e.HasData
	c.mu.Unlock()

	select {
	case res := <-ch:
		if res.Err != nil {
			return c.lastGood(key, stale, hasStale), res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	case <-ctx.Done():
		return stale, ctx.Err()
	}
}

// Revalidate refreshes key even when it is already resolved, keeping the
// previous data visible until the new resolve settles. A pending key is
// joined rather than fetched twice.
func (c *FetchCache[V]) Revalidate(ctx context.Context, key string, resolve ResolveFunc[V]) Result[V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	switch {
	case !ok:
		e = c.insertLocked(key)
		c.startLocked(ctx, e, resolve)
	case e.Status == StatusPending:
		FetchCacheJoins.WithLabelValues(c.name).Inc()
	default:
		c.logger.Debug().Str("key", key).Msg("Revalidating entry")
		c.startLocked(ctx, e, resolve)
	}

	c.touchLocked(e)
	return e.result()
}

// Peek returns a snapshot of key without touching recency or starting work.
func (c *FetchCache[V]) Peek(key string) (Entry[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Entry[V]{}, false
	}
	return e.Entry, true
}

// Invalidate drops key. A resolve still in flight for it completes but its
// result is discarded. Returns false if key was not cached.
func (c *FetchCache[V]) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeLocked(e)
	return true
}

// Clear drops every key.
func (c *FetchCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*fetchEntry[V])
	c.lru.Init()
	FetchCacheEntries.WithLabelValues(c.name).Set(0)
}

// Len returns the number of cached keys, pending ones included.
func (c *FetchCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Name returns the metrics label of the cache.
func (c *FetchCache[V]) Name() string {
	return c.name
}

func (c *FetchCache[V]) insertLocked(key string) *fetchEntry[V] {
	FetchCacheMisses.WithLabelValues(c.name).Inc()

	e := &fetchEntry[V]{Entry: Entry[V]{Key: key, Status: StatusPending}}
	e.elem = c.lru.PushFront(e)
	c.entries[key] = e
	c.evictLocked()

	FetchCacheEntries.WithLabelValues(c.name).Set(float64(len(c.entries)))
	return e
}

func (c *FetchCache[V]) removeLocked(e *fetchEntry[V]) {
	delete(c.entries, e.Key)
	c.lru.Remove(e.elem)
	FetchCacheEntries.WithLabelValues(c.name).Set(float64(len(c.entries)))
}

func (c *FetchCache[V]) touchLocked(e *fetchEntry[V]) {
	c.lru.MoveToFront(e.elem)
}

// evictLocked trims the cache to maxEntries, oldest settled entries first.
func (c *FetchCache[V]) evictLocked() {
	if c.maxEntries <= 0 {
		return
	}
	for el := c.lru.Back(); el != nil && len(c.entries) > c.maxEntries; {
		prev := el.Prev()
		e := el.Value.(*fetchEntry[V])
		if e.Status != StatusPending {
			c.removeLocked(e)
			FetchCacheEvictions.WithLabelValues(c.name).Inc()
			c.logger.Debug().Str("key", e.Key).Msg("Evicted entry")
		}
		el = prev
	}
}

// startLocked launches a resolve for e under a fresh generation. The
// generation is part of the flight key so a new resolve never joins one
// that has already settled.
func (c *FetchCache[V]) startLocked(ctx context.Context, e *fetchEntry[V], resolve ResolveFunc[V]) <-chan singleflight.Result {
	c.seq++
	e.gen = c.seq
	e.Status = StatusPending

	key, gen := e.Key, e.gen
	detached := context.WithoutCancel(ctx)

	c.logger.Debug().Str("key", key).Uint64("gen", gen).Msg("Starting fetch")
	return c.group.DoChan(flightKey(key, gen), func() (any, error) {
		start := time.Now()
		v, err := resolve(detached)
		FetchCacheResolveDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())
		c.settle(key, gen, v, err)
		return v, err
	})
}

// joinLocked attaches to the resolve in flight for a pending entry. While
// the entry is pending its resolve has not returned, so the flight is still
// registered and DoChan joins it instead of calling the function below.
func (c *FetchCache[V]) joinLocked(e *fetchEntry[V]) <-chan singleflight.Result {
	key := e.Key
	return c.group.DoChan(flightKey(key, e.gen), func() (any, error) {
		var zero V
		return zero, errFlightLost(key)
	})
}

func (c *FetchCache[V]) settle(key string, gen uint64, v V, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.gen != gen {
		c.logger.Debug().Str("key", key).Uint64("gen", gen).Msg("Discarding result for dropped entry")
		return
	}

	e.UpdatedAt = time.Now()
	if err != nil {
		e.Status = StatusFailed
		e.Err = err
		FetchCacheFailures.WithLabelValues(c.name).Inc()
		c.logger.Warn().Err(err).Str("key", key).Bool("has_stale", e.HasData).Msg("Fetch failed")
		return
	}

	e.Status = StatusResolved
	e.Data = v
	e.HasData = true
	e.Err = nil
	c.logger.Debug().Str("key", key).Msg("Fetch resolved")
}

func (c *FetchCache[V]) lastGood(key string, fallback V, hasFallback bool) V {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && e.HasData {
		return e.Data
	}
	if hasFallback {
		return fallback
	}
	var zero V
	return zero
}

func (e *fetchEntry[V]) result() Result[V] {
	return Result[V]{
		Data:    e.Data,
		HasData: e.HasData,
		Err:     e.Err,
		Loading: e.Status == StatusPending,
	}
}

func flightKey(key string, gen uint64) string {
	return key + "#" + strconv.FormatUint(gen, 10)
}
