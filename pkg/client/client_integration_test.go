//go:build integration

package client

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/profiledir/directory-client/internal/testutil"
	"github.com/profiledir/directory-client/pkg/cache"
	"github.com/profiledir/directory-client/pkg/ratelimit"
	"github.com/profiledir/directory-client/pkg/request"
)

// setupRedisContainer creates a Redis container for integration testing.
func setupRedisContainer(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestIntegration_SharedRedisStore(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	mock := testutil.NewMockAPI(testutil.GenerateProfiles(60, "animation")...)
	defer mock.Close()
	mock.MaxAge = 0

	store := cache.NewRedisStore(redisClient)
	logger := zerolog.Nop()
	newClient := func() *Client {
		c, err := New(Config{BaseURL: mock.URL(), Store: store, Logger: &logger})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		return c
	}
	ctx := context.Background()
	d := request.New(5, 52, 1, nil)

	first, err := newClient().FetchProfiles(ctx, d)
	if err != nil {
		t.Fatalf("FetchProfiles() error = %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	// A fresh client revalidates the response stored by the first one
	second, err := newClient().FetchProfiles(ctx, d)
	if err != nil {
		t.Fatalf("FetchProfiles() error = %v", err)
	}

	if mock.GetConditionalCount() != 1 {
		t.Errorf("conditional requests = %d, want 1", mock.GetConditionalCount())
	}
	if len(second.Designers) != len(first.Designers) {
		t.Errorf("len(Designers) = %d, want %d", len(second.Designers), len(first.Designers))
	}

	key := cache.ResponseKey{Endpoint: "/api", QueryParams: d.Query()}
	ttl := redisClient.TTL(ctx, key.String()).Val()
	if ttl <= 0 || ttl > cache.StaleRetention {
		t.Errorf("stored TTL = %v, want within stale retention", ttl)
	}
}

func TestIntegration_SharedBackoff(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	mock := testutil.NewMockAPI(testutil.GenerateProfiles(3)...)
	defer mock.Close()
	mock.FailNext(testutil.NewRateLimitResponse(30))

	logger := zerolog.Nop()
	newClient := func() *Client {
		c, err := New(Config{
			BaseURL:     mock.URL(),
			RateLimiter: ratelimit.NewTracker(redisClient, logger),
			Logger:      &logger,
		})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		return c
	}
	ctx := context.Background()

	if _, err := newClient().FetchMeta(ctx); err == nil {
		t.Fatal("expected a rate limit error")
	}

	// Another process sharing Redis holds off as well
	if _, err := newClient().FetchMeta(ctx); err == nil {
		t.Fatal("expected the shared back-off to block the request")
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("requests = %d, want 1", mock.GetRequestCount())
	}
}
