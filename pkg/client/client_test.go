package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/profiledir/directory-client/internal/testutil"
	"github.com/profiledir/directory-client/pkg/cache"
	"github.com/profiledir/directory-client/pkg/filter"
	"github.com/profiledir/directory-client/pkg/request"
)

func newTestClient(t *testing.T, baseURL string, modify func(*Config)) *Client {
	t.Helper()

	logger := zerolog.Nop()
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.Logger = &logger
	cfg.MaxRetries = 0
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	if modify != nil {
		modify(&cfg)
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func newTestStore(t *testing.T) *cache.MemoryStore {
	t.Helper()
	store, err := cache.NewMemoryStore(cache.MemoryStoreConfig{MaxBytes: 1 << 20, NumCounters: 1000})
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{name: "zero config uses defaults", config: Config{}},
		{name: "custom base url", config: Config{BaseURL: "http://localhost:8080/"}},
		{name: "non-http scheme", config: Config{BaseURL: "ftp://example.com"}, expectError: true},
		{name: "relative base url", config: Config{BaseURL: "example.com/api"}, expectError: true},
		{name: "unparseable base url", config: Config{BaseURL: "http://[::1"}, expectError: true},
		{name: "negative retries", config: Config{MaxRetries: -1}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)
			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if client == nil {
				t.Fatal("Client is nil")
			}
			if client.config.ProfilesPath != "/api" || client.config.MetaPath != "/meta" {
				t.Errorf("paths = %q, %q; want /api, /meta", client.config.ProfilesPath, client.config.MetaPath)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, DefaultBaseURL)
	}
	if cfg.UserAgent == "" {
		t.Error("UserAgent should not be empty")
	}
	if cfg.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d, want 2", cfg.MaxRetries)
	}
	if cfg.RequestTimeout <= 0 {
		t.Errorf("RequestTimeout = %v, should be > 0", cfg.RequestTimeout)
	}
}

func TestClient_EndpointURL(t *testing.T) {
	c := newTestClient(t, "https://api.example.com/", nil)

	d := request.New(42, 52, 2, filter.NewSet("type-design", "animation"))
	got := c.endpointURL("/api", d.Query())
	want := "https://api.example.com/api?hash=42&limit=52&offset=52&tags=animation&tags=type-design"
	if got != want {
		t.Errorf("endpointURL() = %q, want %q", got, want)
	}

	if got := c.endpointURL("/meta", nil); got != "https://api.example.com/meta" {
		t.Errorf("endpointURL(meta) = %q", got)
	}
}

func TestClient_FetchProfiles(t *testing.T) {
	mock := testutil.NewMockAPI(testutil.GenerateProfiles(120, "illustration", "animation")...)
	defer mock.Close()
	c := newTestClient(t, mock.URL(), nil)
	ctx := context.Background()

	tests := []struct {
		name          string
		page          int
		filters       *filter.Set
		wantDesigners int
		wantTotal     int
	}{
		{name: "first page", page: 1, filters: filter.NewSet(), wantDesigners: 52, wantTotal: 120},
		{name: "last partial page", page: 3, filters: filter.NewSet(), wantDesigners: 16, wantTotal: 120},
		{name: "past the end", page: 4, filters: filter.NewSet(), wantDesigners: 0, wantTotal: 120},
		{name: "filtered", page: 1, filters: filter.NewSet("animation"), wantDesigners: 52, wantTotal: 60},
		{name: "filtered second page", page: 2, filters: filter.NewSet("animation"), wantDesigners: 8, wantTotal: 60},
		{name: "no matches", page: 1, filters: filter.NewSet("animation", "illustration"), wantDesigners: 0, wantTotal: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := c.FetchProfiles(ctx, request.New(7, 52, tt.page, tt.filters))
			if err != nil {
				t.Fatalf("FetchProfiles() error = %v", err)
			}
			if len(page.Designers) != tt.wantDesigners {
				t.Errorf("len(Designers) = %d, want %d", len(page.Designers), tt.wantDesigners)
			}
			if page.Info.NumFilteredDesigners != tt.wantTotal {
				t.Errorf("NumFilteredDesigners = %d, want %d", page.Info.NumFilteredDesigners, tt.wantTotal)
			}
		})
	}
}

func TestClient_FetchProfiles_StableOrderPerHash(t *testing.T) {
	mock := testutil.NewMockAPI(testutil.GenerateProfiles(30)...)
	defer mock.Close()
	c := newTestClient(t, mock.URL(), nil)
	ctx := context.Background()

	first, err := c.FetchProfiles(ctx, request.New(1, 30, 1, nil))
	if err != nil {
		t.Fatalf("FetchProfiles() error = %v", err)
	}
	again, err := c.FetchProfiles(ctx, request.New(1, 30, 1, nil))
	if err != nil {
		t.Fatalf("FetchProfiles() error = %v", err)
	}
	for i := range first.Designers {
		if first.Designers[i].Username != again.Designers[i].Username {
			t.Fatalf("order changed for the same hash at %d", i)
		}
	}
	if first.Designers[0].DisplayURL == "" || first.Designers[0].ExpandedURL == "" {
		t.Error("display_url and expanded_url should be decoded")
	}
}

func TestClient_RequestHeadersAndQuery(t *testing.T) {
	mock := testutil.NewMockAPI(testutil.GenerateProfiles(5, "animation")...)
	defer mock.Close()
	c := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.UserAgent = "TestApp/1.0" })

	_, err := c.FetchProfiles(context.Background(), request.New(99, 52, 2, filter.NewSet("b", "a")))
	if err != nil {
		t.Fatalf("FetchProfiles() error = %v", err)
	}

	if got := mock.LastRequestHeader.Get("User-Agent"); got != "TestApp/1.0" {
		t.Errorf("User-Agent = %q, want TestApp/1.0", got)
	}
	if got := mock.LastRequestHeader.Get("Accept"); got != "application/json" {
		t.Errorf("Accept = %q, want application/json", got)
	}
	if _, err := uuid.Parse(mock.LastRequestHeader.Get(RequestIDHeader)); err != nil {
		t.Errorf("%s is not a uuid: %v", RequestIDHeader, err)
	}

	q := mock.LastQuery
	if q["hash"][0] != "99" || q["limit"][0] != "52" || q["offset"][0] != "52" {
		t.Errorf("query = %v, want hash=99 limit=52 offset=52", q)
	}
	if tags := q["tags"]; len(tags) != 2 || tags[0] != "a" || tags[1] != "b" {
		t.Errorf("tags = %v, want [a b]", tags)
	}
}

func TestClient_FetchMeta(t *testing.T) {
	mock := testutil.NewMockAPI(testutil.GenerateProfiles(10, "illustration", "animation", "type-design")...)
	defer mock.Close()
	c := newTestClient(t, mock.URL(), nil)

	meta, err := c.FetchMeta(context.Background())
	if err != nil {
		t.Fatalf("FetchMeta() error = %v", err)
	}

	want := map[string]int{"illustration": 4, "animation": 3, "type-design": 3}
	for tag, count := range want {
		if meta.NumDesignersPerTag[tag] != count {
			t.Errorf("NumDesignersPerTag[%s] = %d, want %d", tag, meta.NumDesignersPerTag[tag], count)
		}
	}
}

func TestClient_DecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "invalid json", path: "/api", body: `{"designers": [`},
		{name: "missing designers", path: "/api", body: `{"info": {"numFilteredDesigners": 3}}`},
		{name: "missing info", path: "/api", body: `{"designers": []}`},
		{name: "wrong type", path: "/api", body: `{"designers": "oops", "info": {"numFilteredDesigners": 1}}`},
		{name: "negative count", path: "/api", body: `{"designers": [], "info": {"numFilteredDesigners": -1}}`},
		{name: "meta without counts", path: "/meta", body: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockAPI()
			defer mock.Close()
			mock.SetResponse(tt.path, testutil.MockResponse{StatusCode: http.StatusOK, Body: tt.body})
			c := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.MaxRetries = 2 })

			var err error
			if tt.path == "/meta" {
				_, err = c.FetchMeta(context.Background())
			} else {
				_, err = c.FetchProfiles(context.Background(), request.New(1, 52, 1, nil))
			}

			if !errors.Is(err, ErrDecode) {
				t.Fatalf("error = %v, want ErrDecode", err)
			}
			if classOf(err) != ErrorClassDecode {
				t.Errorf("class = %q, want %q", classOf(err), ErrorClassDecode)
			}
			if mock.GetRequestCount() != 1 {
				t.Errorf("requests = %d, decode errors must not be retried", mock.GetRequestCount())
			}
		})
	}
}

func TestClient_StatusErrors(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/api", testutil.MockResponse{StatusCode: http.StatusNotFound, Body: `{"error":"not found"}`})
	c := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.MaxRetries = 2 })

	_, err := c.FetchProfiles(context.Background(), request.New(1, 52, 1, nil))
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("error = %v, want ErrStatus", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error %v is not an APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Class != ErrorClassClient {
		t.Errorf("APIError = %+v, want 404 client", apiErr)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("requests = %d, 4xx must not be retried", mock.GetRequestCount())
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	mock := testutil.NewMockAPI(testutil.GenerateProfiles(3)...)
	defer mock.Close()
	mock.FailNext(testutil.NewServerErrorResponse(), testutil.NewServerErrorResponse())
	c := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.MaxRetries = 2 })

	before := promtestutil.ToFloat64(apiRetriesTotal.WithLabelValues(string(ErrorClassServer)))

	page, err := c.FetchProfiles(context.Background(), request.New(1, 52, 1, nil))
	if err != nil {
		t.Fatalf("FetchProfiles() error = %v", err)
	}
	if len(page.Designers) != 3 {
		t.Errorf("len(Designers) = %d, want 3", len(page.Designers))
	}
	if mock.GetRequestCount() != 3 {
		t.Errorf("requests = %d, want 3", mock.GetRequestCount())
	}
	if got := promtestutil.ToFloat64(apiRetriesTotal.WithLabelValues(string(ErrorClassServer))) - before; got != 2 {
		t.Errorf("retries metric grew by %v, want 2", got)
	}
}

func TestClient_RetryExhausted(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/meta", testutil.NewServerErrorResponse())
	c := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.MaxRetries = 1 })

	_, err := c.FetchMeta(context.Background())
	if !errors.Is(err, ErrRetryExhausted) || !errors.Is(err, ErrStatus) {
		t.Fatalf("error = %v, want ErrRetryExhausted wrapping ErrStatus", err)
	}
	if mock.GetRequestCount() != 2 {
		t.Errorf("requests = %d, want 2", mock.GetRequestCount())
	}
}

func TestClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := newTestClient(t, url, nil)
	_, err := c.FetchMeta(context.Background())
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("error = %v, want ErrNetwork", err)
	}
	if classOf(err) != ErrorClassNetwork {
		t.Errorf("class = %q, want %q", classOf(err), ErrorClassNetwork)
	}
}

func TestClient_ContextDeadline(t *testing.T) {
	mock := testutil.NewMockAPI(testutil.GenerateProfiles(3)...)
	defer mock.Close()
	mock.Hold()

	c := newTestClient(t, mock.URL(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.FetchProfiles(ctx, request.New(1, 52, 1, nil))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want context.DeadlineExceeded", err)
	}
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("error = %v, want ErrNetwork", err)
	}
}

func TestClient_RateLimitBackoff(t *testing.T) {
	mock := testutil.NewMockAPI(testutil.GenerateProfiles(3)...)
	defer mock.Close()
	mock.FailNext(testutil.NewRateLimitResponse(60))
	c := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.MaxRetries = 2 })
	ctx := context.Background()

	_, err := c.FetchProfiles(ctx, request.New(1, 52, 1, nil))
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("error = %v, want ErrRateLimited", err)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("requests = %d, a 429 must not be retried", mock.GetRequestCount())
	}

	// The gate stays closed without touching the API
	_, err = c.FetchMeta(ctx)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("error = %v, want ErrRateLimited while backing off", err)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0 for a gated request", apiErr.StatusCode)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("requests = %d, want 1", mock.GetRequestCount())
	}
}

func TestClient_ConditionalRequests(t *testing.T) {
	mock := testutil.NewMockAPI(testutil.GenerateProfiles(10, "animation")...)
	defer mock.Close()
	mock.MaxAge = 0
	store := newTestStore(t)
	c := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.Store = store })
	ctx := context.Background()

	before := promtestutil.ToFloat64(cache.NotModifiedResponses)

	first, err := c.FetchProfiles(ctx, request.New(3, 52, 1, nil))
	if err != nil {
		t.Fatalf("FetchProfiles() error = %v", err)
	}
	if mock.GetConditionalCount() != 0 {
		t.Fatalf("first request should not be conditional")
	}

	time.Sleep(5 * time.Millisecond) // let the max-age=0 entry expire

	second, err := c.FetchProfiles(ctx, request.New(3, 52, 1, nil))
	if err != nil {
		t.Fatalf("FetchProfiles() error = %v", err)
	}
	if mock.GetConditionalCount() != 1 {
		t.Errorf("conditional requests = %d, want 1", mock.GetConditionalCount())
	}
	if mock.LastRequestHeader.Get("If-None-Match") == "" {
		t.Error("If-None-Match was not sent")
	}
	if len(second.Designers) != len(first.Designers) || second.Designers[0] != first.Designers[0] {
		t.Error("304 should serve the stored page")
	}
	if got := promtestutil.ToFloat64(cache.NotModifiedResponses) - before; got != 1 {
		t.Errorf("304 metric grew by %v, want 1", got)
	}
}

func TestClient_ServesFreshStoredResponse(t *testing.T) {
	mock := testutil.NewMockAPI(testutil.GenerateProfiles(4)...)
	defer mock.Close()
	mock.MaxAge = 300
	store := newTestStore(t)
	c := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.Store = store })
	ctx := context.Background()

	for range 3 {
		if _, err := c.FetchMeta(ctx); err != nil {
			t.Fatalf("FetchMeta() error = %v", err)
		}
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("requests = %d, fresh stored responses should be served without a request", mock.GetRequestCount())
	}

	// A second client sharing the store skips the API as well
	other := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.Store = store })
	if _, err := other.FetchMeta(ctx); err != nil {
		t.Fatalf("FetchMeta() error = %v", err)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("requests = %d, want 1", mock.GetRequestCount())
	}
}

func TestClient_DropsUndecodableStoredResponse(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/meta", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{}`,
		Headers:    map[string]string{"Cache-Control": "max-age=300"},
	})
	store := newTestStore(t)
	c := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.Store = store })
	ctx := context.Background()

	if _, err := c.FetchMeta(ctx); !errors.Is(err, ErrDecode) {
		t.Fatalf("error = %v, want ErrDecode", err)
	}

	_, err := store.Get(ctx, cache.ResponseKey{Endpoint: "/meta"})
	if !errors.Is(err, cache.ErrCacheMiss) {
		t.Errorf("store.Get() error = %v, undecodable response should be dropped", err)
	}
}
