package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for back-off tracking.
var (
	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "directory_rate_limit_blocks_total",
		Help: "Total number of requests blocked by a Retry-After back-off",
	})

	rateLimitBackoffsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "directory_rate_limit_backoffs_total",
		Help: "Total number of back-off windows started, by status code",
	}, []string{"status"})
)

// Tracker records Retry-After responses and gates requests until the
// requested pause is over.
//
// The state lives in memory. With a Redis client the deadline is also shared,
// so every process talking to the API pauses together.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger

	mu    sync.Mutex
	state State
}

// NewTracker creates a tracker. redisClient may be nil.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

// GetState returns the current back-off state, merged with the shared Redis
// deadline when one is configured. On a Redis error the local state is
// returned together with the error.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	t.mu.Lock()
	state := t.state
	t.mu.Unlock()

	if t.redis == nil {
		return &state, nil
	}

	ms, err := t.redis.Get(ctx, RedisKeyBlockedUntil).Int64()
	if errors.Is(err, redis.Nil) {
		return &state, nil
	}
	if err != nil {
		return &state, fmt.Errorf("get blocked until: %w", err)
	}

	if shared := time.UnixMilli(ms); shared.After(state.BlockedUntil) {
		state.BlockedUntil = shared
	}
	return &state, nil
}

// UpdateFromHeaders starts a back-off window when statusCode is 429 or 503
// and the response carries Retry-After. A 429 without a usable value backs
// off for DefaultRetryAfter; a 503 without one is an ordinary server error.
// An existing longer block is never shortened. The only errors come from
// publishing the deadline to Redis.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, statusCode int, headers http.Header) error {
	if !backsOff(statusCode) {
		return nil
	}

	now := time.Now()
	wait, err := ParseRetryAfter(headers.Get("Retry-After"), now)
	switch {
	case err == nil:
	case statusCode == http.StatusTooManyRequests:
		t.logger.Debug().Err(err).Msg("Using default back-off")
		wait = DefaultRetryAfter
	default:
		return nil
	}
	if wait <= 0 {
		return nil
	}

	until := now.Add(wait)

	t.mu.Lock()
	if until.After(t.state.BlockedUntil) {
		t.state.BlockedUntil = until
	}
	t.state.LastStatus = statusCode
	t.state.LastUpdate = now
	t.mu.Unlock()

	rateLimitBackoffsTotal.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	t.logger.Warn().
		Int("status", statusCode).
		Dur("retry_after", wait).
		Time("blocked_until", until).
		Msg("API asked to back off - pausing requests")

	if t.redis == nil {
		return nil
	}
	return t.storeShared(ctx, until, wait)
}

// storeShared publishes the deadline unless a later one is already stored.
func (t *Tracker) storeShared(ctx context.Context, until time.Time, wait time.Duration) error {
	current, err := t.redis.Get(ctx, RedisKeyBlockedUntil).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("get blocked until: %w", err)
	}
	if err == nil && current >= until.UnixMilli() {
		return nil
	}

	if err := t.redis.Set(ctx, RedisKeyBlockedUntil, until.UnixMilli(), wait).Err(); err != nil {
		return fmt.Errorf("store blocked until in redis: %w", err)
	}
	return nil
}

// ShouldAllowRequest returns false while a back-off window is open.
// A Redis failure falls back to the local state and is returned as error
// alongside the decision.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Shared rate limit state unavailable, using local state")
	}

	if state.IsBlocked() {
		rateLimitBlocksTotal.Inc()
		t.logger.Debug().
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Back-off active - blocking request")
		return false, err
	}

	return true, err
}

// Reset clears the local back-off state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.state = State{}
	t.mu.Unlock()
}
