// Package metrics exposes the Prometheus registry used by the directory client.
// All metrics are defined in their respective packages (cache, client,
// ratelimit) to keep them next to the code that updates them.
//
// This package provides the scrape handler and the metric reference.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package registers with via promauto.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics scrape handler.
func Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(
		Registry,
		promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}),
	)
}

// Metrics Documentation
//
// Fetch Cache Metrics (pkg/cache, label cache = profiles|meta|...):
//   - directory_fetch_cache_hits_total (Counter): Lookups answered from a resolved entry
//   - directory_fetch_cache_misses_total (Counter): Lookups that created an entry
//   - directory_fetch_cache_joins_total (Counter): Lookups coalesced into an in-flight fetch
//   - directory_fetch_cache_failures_total (Counter): Resolves that failed
//   - directory_fetch_cache_evictions_total (Counter): Entries dropped by MaxEntries
//   - directory_fetch_cache_entries (Gauge): Current number of keys
//   - directory_fetch_cache_resolve_duration_seconds (Histogram): Resolve duration
//
// Response Store Metrics (pkg/cache, label layer = redis|memory):
//   - directory_response_store_hits_total (Counter): Store hits
//   - directory_response_store_misses_total (Counter): Store misses
//   - directory_response_store_errors_total{operation} (Counter): Store operation errors
//   - directory_304_responses_total (Counter): 304 Not Modified responses
//   - directory_conditional_requests_total (Counter): Requests sent with If-None-Match/If-Modified-Since
//
// Request Metrics (pkg/client):
//   - directory_api_requests_total{endpoint, status} (Counter): Requests by endpoint and status
//     (status also takes "stored", "rate_limited" and "network_error")
//   - directory_api_request_duration_seconds{endpoint} (Histogram): Request duration
//   - directory_api_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode)
//
// Retry Metrics (pkg/client):
//   - directory_api_retries_total{error_class} (Counter): Retry attempts
//   - directory_api_retry_backoff_seconds{error_class} (Histogram): Backoff duration
//   - directory_api_retry_exhausted_total{error_class} (Counter): Calls that exhausted their retries
//
// Back-off Metrics (pkg/ratelimit):
//   - directory_rate_limit_blocks_total (Counter): Requests blocked by a Retry-After window
//   - directory_rate_limit_backoffs_total{status} (Counter): Back-off windows started
//
// Example Prometheus Queries:
//
//   # Fetch cache hit rate (joins count as saved requests too)
//   sum(rate(directory_fetch_cache_hits_total[5m])) /
//   sum(rate(directory_fetch_cache_misses_total[5m]) + rate(directory_fetch_cache_hits_total[5m]))
//
//   # Request error rate by class
//   sum by (class) (rate(directory_api_errors_total[5m]))
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(directory_api_request_duration_seconds_bucket[5m]))
//
//   # Revalidations answered with 304
//   rate(directory_304_responses_total[5m]) / rate(directory_conditional_requests_total[5m])
