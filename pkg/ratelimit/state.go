// Package ratelimit gates API requests after the server asks clients to back
// off. It honours the Retry-After header of 429 and 503 responses so a burst
// of page requests does not keep hammering an overloaded API.
package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RedisKeyBlockedUntil holds the shared block deadline in unix milliseconds.
const RedisKeyBlockedUntil = "directory:rate_limit:blocked_until"

const (
	// DefaultRetryAfter is used for a 429 that carries no usable Retry-After.
	DefaultRetryAfter = 10 * time.Second

	// MaxRetryAfter caps how long a single response can block requests.
	MaxRetryAfter = 10 * time.Minute
)

// State is the current back-off state.
type State struct {
	// BlockedUntil is when requests may resume. Zero means never blocked.
	BlockedUntil time.Time `json:"blocked_until"`

	// LastStatus is the status code of the response that set the block.
	LastStatus int `json:"last_status"`

	// LastUpdate is when the state last changed.
	LastUpdate time.Time `json:"last_update"`
}

// IsBlocked returns true while requests should not be sent.
func (s *State) IsBlocked() bool {
	return time.Now().Before(s.BlockedUntil)
}

// IsStale returns true if the state is older than maxAge.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// TimeUntilReset returns the remaining block duration.
// Returns 0 if the block has already passed.
func (s *State) TimeUntilReset() time.Duration {
	d := time.Until(s.BlockedUntil)
	if d < 0 {
		return 0
	}
	return d
}

// ParseRetryAfter parses a Retry-After value given either as delay seconds
// or as an HTTP date relative to now. The result is clamped to
// [0, MaxRetryAfter].
func ParseRetryAfter(value string, now time.Time) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty Retry-After value")
	}

	var d time.Duration
	if seconds, err := strconv.Atoi(value); err == nil {
		d = time.Duration(seconds) * time.Second
	} else if at, err := http.ParseTime(value); err == nil {
		d = at.Sub(now)
	} else {
		return 0, fmt.Errorf("parse Retry-After %q: not seconds or an HTTP date", value)
	}

	return min(max(d, 0), MaxRetryAfter), nil
}

// backsOff reports whether statusCode is one the server uses to ask for a pause.
func backsOff(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode == http.StatusServiceUnavailable
}
