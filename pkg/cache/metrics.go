package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch cache metrics, labelled by cache name.
var (
	// FetchCacheHits tracks lookups answered from a resolved entry
	FetchCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directory_fetch_cache_hits_total",
			Help: "Total number of fetch cache hits",
		},
		[]string{"cache"},
	)

	// FetchCacheMisses tracks lookups that created a new entry
	FetchCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directory_fetch_cache_misses_total",
			Help: "Total number of fetch cache misses",
		},
		[]string{"cache"},
	)

	// FetchCacheJoins tracks lookups that attached to an in-flight resolve
	FetchCacheJoins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directory_fetch_cache_joins_total",
			Help: "Total number of lookups coalesced into an in-flight fetch",
		},
		[]string{"cache"},
	)

	// FetchCacheFailures tracks resolves that returned an error
	FetchCacheFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directory_fetch_cache_failures_total",
			Help: "Total number of failed fetches",
		},
		[]string{"cache"},
	)

	// FetchCacheEvictions tracks entries dropped by the size bound
	FetchCacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directory_fetch_cache_evictions_total",
			Help: "Total number of fetch cache evictions",
		},
		[]string{"cache"},
	)

	// FetchCacheEntries tracks the current number of keys
	FetchCacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "directory_fetch_cache_entries",
			Help: "Current number of fetch cache entries",
		},
		[]string{"cache"},
	)

	// FetchCacheResolveDuration tracks how long resolves take
	FetchCacheResolveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "directory_fetch_cache_resolve_duration_seconds",
			Help:    "Fetch cache resolve duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"cache"},
	)
)

// Response store metrics.
var (
	// StoreHits tracks response store hits by layer ("redis", "memory")
	StoreHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directory_response_store_hits_total",
			Help: "Total number of response store hits",
		},
		[]string{"layer"},
	)

	// StoreMisses tracks response store misses by layer
	StoreMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directory_response_store_misses_total",
			Help: "Total number of response store misses",
		},
		[]string{"layer"},
	)

	// StoreErrors tracks response store operation errors
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directory_response_store_errors_total",
			Help: "Total number of response store operation errors",
		},
		[]string{"layer", "operation"}, // "get", "set", "delete"
	)

	// NotModifiedResponses tracks 304 Not Modified responses
	NotModifiedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "directory_304_responses_total",
			Help: "Total number of 304 Not Modified responses",
		},
	)

	// ConditionalRequestsSent tracks requests sent with If-None-Match or If-Modified-Since
	ConditionalRequestsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "directory_conditional_requests_total",
			Help: "Total number of conditional requests sent",
		},
	)
)
