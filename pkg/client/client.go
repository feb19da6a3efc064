// Package client provides the HTTP client for the profile directory API with
// response caching, conditional requests, back-off gating and retries.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/profiledir/directory-client/pkg/cache"
	"github.com/profiledir/directory-client/pkg/ratelimit"
	"github.com/profiledir/directory-client/pkg/request"
)

// Prometheus metrics for API client operations.
var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "directory_api_requests_total",
		Help: "Total API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "directory_api_request_duration_seconds",
		Help:    "API request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	apiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "directory_api_errors_total",
		Help: "Total API errors by class",
	}, []string{"class"})

	apiRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "directory_api_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	apiRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "directory_api_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10},
	}, []string{"error_class"})

	apiRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "directory_api_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

const (
	// DefaultBaseURL is the public directory API.
	DefaultBaseURL = "https://womenwhodesign-e87dc.firebaseapp.com"

	// DefaultUserAgent identifies the client to the API.
	DefaultUserAgent = "directory-client/1.0"

	// RequestIDHeader carries a per-call id, logged on both sides.
	RequestIDHeader = "X-Request-Id"
)

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API origin, e.g. "https://api.example.com".
	BaseURL string

	// ProfilesPath and MetaPath are appended to BaseURL.
	ProfilesPath string
	MetaPath     string

	UserAgent string

	// Store keeps responses for conditional requests. Optional.
	Store cache.Store

	// RateLimiter gates requests after 429/503 responses. nil gets a
	// private in-memory tracker.
	RateLimiter *ratelimit.Tracker

	// HTTPClient overrides the transport (tests, proxies). Its Timeout is
	// replaced by RequestTimeout when that is set.
	HTTPClient *http.Client

	// RequestTimeout bounds a single attempt.
	RequestTimeout time.Duration

	// MaxRetries is the number of extra attempts for network and 5xx
	// failures. 0 disables retries.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Logger defaults to a "directory-client" component logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns a configuration for the public API without a store.
func DefaultConfig() Config {
	retry := DefaultRetryConfig()
	return Config{
		BaseURL:        DefaultBaseURL,
		ProfilesPath:   "/api",
		MetaPath:       "/meta",
		UserAgent:      DefaultUserAgent,
		RequestTimeout: 15 * time.Second,
		MaxRetries:     retry.MaxAttempts - 1,
		InitialBackoff: retry.InitialBackoff,
		MaxBackoff:     retry.MaxBackoff,
	}
}

// Client talks to the directory API.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	store       cache.Store
	rateLimiter *ratelimit.Tracker
	retry       RetryConfig
	config      Config
	logger      zerolog.Logger
}

// New creates a client. Zero fields of cfg take their DefaultConfig value,
// except MaxRetries where 0 means no retries.
func New(cfg Config) (*Client, error) {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.ProfilesPath == "" {
		cfg.ProfilesPath = def.ProfilesPath
	}
	if cfg.MetaPath == "" {
		cfg.MetaPath = def.MetaPath
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("base url must be an absolute http(s) url (got %q)", cfg.BaseURL)
	}

	logger := log.With().Str("component", "directory-client").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	httpClient := &http.Client{}
	if cfg.HTTPClient != nil {
		clone := *cfg.HTTPClient
		httpClient = &clone
	}
	httpClient.Timeout = cfg.RequestTimeout

	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimiter = ratelimit.NewTracker(nil, logger)
	}

	return &Client{
		httpClient:  httpClient,
		baseURL:     base,
		store:       cfg.Store,
		rateLimiter: rateLimiter,
		retry: RetryConfig{
			MaxAttempts:       cfg.MaxRetries + 1,
			InitialBackoff:    cfg.InitialBackoff,
			MaxBackoff:        cfg.MaxBackoff,
			BackoffMultiplier: 2.0,
		},
		config: cfg,
		logger: logger,
	}, nil
}

// FetchProfiles loads one page of profiles for d.
func (c *Client) FetchProfiles(ctx context.Context, d request.Descriptor) (*ProfilePage, error) {
	entry, err := c.Get(ctx, c.config.ProfilesPath, d.Query())
	if err != nil {
		return nil, err
	}

	page, err := decodeProfilePage(entry.Data)
	if err != nil {
		return nil, c.decodeError(ctx, c.config.ProfilesPath, d.Query(), entry, err)
	}
	return page, nil
}

// FetchMeta loads the per-tag profile counts.
func (c *Client) FetchMeta(ctx context.Context) (*Meta, error) {
	entry, err := c.Get(ctx, c.config.MetaPath, nil)
	if err != nil {
		return nil, err
	}

	meta, err := decodeMeta(entry.Data)
	if err != nil {
		return nil, c.decodeError(ctx, c.config.MetaPath, nil, entry, err)
	}
	return meta, nil
}

// decodeError drops an undecodable stored response and wraps err.
func (c *Client) decodeError(ctx context.Context, endpoint string, query url.Values, entry *cache.ResponseEntry, err error) error {
	apiErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
	if c.store != nil {
		key := cache.ResponseKey{Endpoint: endpoint, QueryParams: query}
		if delErr := c.store.Delete(ctx, key); delErr != nil {
			c.logger.Warn().Err(delErr).Str("endpoint", endpoint).Msg("Failed to drop undecodable response")
		}
	}
	return &APIError{
		StatusCode: entry.StatusCode,
		Class:      ErrorClassDecode,
		URL:        c.endpointURL(endpoint, query),
		Err:        err,
	}
}

// Get performs a GET request to endpoint with store lookup, conditional
// revalidation, back-off gating and retries. A fresh stored response is
// returned without a request.
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values) (*cache.ResponseEntry, error) {
	target := c.endpointURL(endpoint, query)
	key := cache.ResponseKey{Endpoint: endpoint, QueryParams: query}

	cached := c.lookup(ctx, key)
	if cached != nil && !cached.IsExpired() && cached.StatusCode == http.StatusOK {
		c.logger.Debug().Str("url", target).Dur("ttl", cached.TTL()).Msg("Serving stored response")
		apiRequestsTotal.WithLabelValues(endpoint, "stored").Inc()
		return cached, nil
	}

	requestID := uuid.NewString()
	var result *cache.ResponseEntry

	err := retryWithBackoff(ctx, c.retry, c.logger, func(attempt int) error {
		entry, err := c.do(ctx, endpoint, target, requestID, attempt, cached)
		if err != nil {
			if class := classOf(err); class != "" {
				apiErrorsTotal.WithLabelValues(string(class)).Inc()
			}
			return err
		}
		result = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	if c.store != nil {
		if err := c.store.Set(ctx, key, result); err != nil {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Failed to store response")
		}
	}
	return result, nil
}

// do performs a single attempt.
func (c *Client) do(ctx context.Context, endpoint, target, requestID string, attempt int, cached *cache.ResponseEntry) (*cache.ResponseEntry, error) {
	allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Rate limit check degraded")
	}
	if !allowed {
		wait := time.Duration(0)
		if state, err := c.rateLimiter.GetState(ctx); err == nil {
			wait = state.TimeUntilReset()
		}
		apiRequestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
		return nil, &APIError{
			Class: ErrorClassRateLimit,
			URL:   target,
			Err:   fmt.Errorf("%w: retry in %s", ErrRateLimited, wait.Round(time.Second)),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)

	if cache.ShouldMakeConditionalRequest(cached) {
		cache.AddConditionalHeaders(req, cached)
		cache.ConditionalRequestsSent.Inc()
	}

	c.logger.Debug().
		Str("url", target).
		Str("request_id", requestID).
		Int("attempt", attempt).
		Msg("Executing API request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	apiRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		apiRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, &APIError{
			Class: ErrorClassNetwork,
			URL:   target,
			Err:   fmt.Errorf("%w: %w", ErrNetwork, err),
		}
	}
	defer resp.Body.Close()

	apiRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.StatusCode, resp.Header); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
	}

	switch {
	case resp.StatusCode == http.StatusNotModified && cached != nil:
		cache.NotModifiedResponses.Inc()
		_, _ = io.Copy(io.Discard, resp.Body)

		refreshed := *cached
		cache.Refresh(&refreshed, resp.Header)
		c.logger.Debug().Str("url", target).Dur("ttl", refreshed.TTL()).Msg("304 Not Modified - using stored response")
		return &refreshed, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		entry, err := cache.ResponseToEntry(resp)
		if err != nil {
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				Class:      ErrorClassNetwork,
				URL:        target,
				Err:        fmt.Errorf("%w: %w", ErrNetwork, err),
			}
		}
		return entry, nil

	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		apiErr := statusError(target, resp)
		c.logger.Warn().
			Str("url", target).
			Int("status", resp.StatusCode).
			Str("error_class", string(apiErr.Class)).
			Msg("API request error")
		return nil, apiErr
	}
}

// lookup returns the stored response for key, or nil.
func (c *Client) lookup(ctx context.Context, key cache.ResponseKey) *cache.ResponseEntry {
	if c.store == nil {
		return nil
	}
	entry, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("key", key.String()).Msg("Response store get error")
		}
		return nil
	}
	return entry
}

// endpointURL joins the base URL, endpoint and encoded query.
func (c *Client) endpointURL(endpoint string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(c.baseURL.Path, "/") + "/" + strings.TrimLeft(endpoint, "/")
	u.RawQuery = query.Encode()
	return u.String()
}

// BaseURL returns the configured API origin.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
