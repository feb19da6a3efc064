package ratelimit

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestTracker() *Tracker {
	return NewTracker(nil, zerolog.New(os.Stderr).Level(zerolog.Disabled))
}

func retryAfter(value string) http.Header {
	h := http.Header{}
	if value != "" {
		h.Set("Retry-After", value)
	}
	return h
}

func TestTracker_UpdateFromHeaders(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		retryAfter  string
		wantBlocked bool
		wantWait    time.Duration
	}{
		{name: "ok response", status: http.StatusOK, retryAfter: "30", wantBlocked: false},
		{name: "server error", status: http.StatusInternalServerError, retryAfter: "30", wantBlocked: false},
		{name: "429 with delay", status: http.StatusTooManyRequests, retryAfter: "30", wantBlocked: true, wantWait: 30 * time.Second},
		{name: "429 without header", status: http.StatusTooManyRequests, wantBlocked: true, wantWait: DefaultRetryAfter},
		{name: "429 with garbage", status: http.StatusTooManyRequests, retryAfter: "later", wantBlocked: true, wantWait: DefaultRetryAfter},
		{name: "429 with zero", status: http.StatusTooManyRequests, retryAfter: "0", wantBlocked: false},
		{name: "503 with delay", status: http.StatusServiceUnavailable, retryAfter: "60", wantBlocked: true, wantWait: time.Minute},
		{name: "503 without header", status: http.StatusServiceUnavailable, wantBlocked: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := newTestTracker()
			ctx := context.Background()

			if err := tracker.UpdateFromHeaders(ctx, tt.status, retryAfter(tt.retryAfter)); err != nil {
				t.Fatalf("UpdateFromHeaders() error = %v", err)
			}

			state, err := tracker.GetState(ctx)
			if err != nil {
				t.Fatalf("GetState() error = %v", err)
			}
			if state.IsBlocked() != tt.wantBlocked {
				t.Fatalf("IsBlocked() = %v, want %v", state.IsBlocked(), tt.wantBlocked)
			}
			if !tt.wantBlocked {
				return
			}

			if state.LastStatus != tt.status {
				t.Errorf("LastStatus = %d, want %d", state.LastStatus, tt.status)
			}
			if diff := tt.wantWait - state.TimeUntilReset(); diff < 0 || diff > 2*time.Second {
				t.Errorf("TimeUntilReset() = %v, want about %v", state.TimeUntilReset(), tt.wantWait)
			}
		})
	}
}

func TestTracker_LongerBlockIsKept(t *testing.T) {
	tracker := newTestTracker()
	ctx := context.Background()

	if err := tracker.UpdateFromHeaders(ctx, http.StatusTooManyRequests, retryAfter("120")); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}
	if err := tracker.UpdateFromHeaders(ctx, http.StatusTooManyRequests, retryAfter("5")); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	state, _ := tracker.GetState(ctx)
	if state.TimeUntilReset() < 100*time.Second {
		t.Errorf("TimeUntilReset() = %v, a shorter Retry-After must not shorten the block", state.TimeUntilReset())
	}
}

func TestTracker_ShouldAllowRequest(t *testing.T) {
	tracker := newTestTracker()
	ctx := context.Background()

	allowed, err := tracker.ShouldAllowRequest(ctx)
	if err != nil || !allowed {
		t.Fatalf("ShouldAllowRequest() = %v, %v; want true, nil before any back-off", allowed, err)
	}

	if err := tracker.UpdateFromHeaders(ctx, http.StatusTooManyRequests, retryAfter("60")); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	allowed, err = tracker.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if allowed {
		t.Error("ShouldAllowRequest() = true, want false during back-off")
	}

	// Simulate the window passing
	tracker.mu.Lock()
	tracker.state.BlockedUntil = time.Now().Add(-time.Millisecond)
	tracker.mu.Unlock()

	allowed, _ = tracker.ShouldAllowRequest(ctx)
	if !allowed {
		t.Error("ShouldAllowRequest() = false, want true after the window passed")
	}
}

func TestTracker_Reset(t *testing.T) {
	tracker := newTestTracker()
	ctx := context.Background()

	if err := tracker.UpdateFromHeaders(ctx, http.StatusTooManyRequests, retryAfter("60")); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}
	tracker.Reset()

	if allowed, _ := tracker.ShouldAllowRequest(ctx); !allowed {
		t.Error("ShouldAllowRequest() = false after Reset")
	}
}
