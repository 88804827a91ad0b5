// Package metrics documents the Prometheus metrics exposed by the App
// Store Connect client. All metrics are defined in their respective
// packages (client, ratelimit, auth, cache) to maintain modularity and
// avoid circular dependencies.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the client.
// All metrics are automatically registered via promauto in their
// respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Rate Budget Metrics (pkg/ratelimit):
//   - asc_rate_budget_remaining (Gauge): Requests remaining in the current window
//   - asc_rate_budget_blocks_total (Counter): Requests rejected by budget or cool-down
//   - asc_rate_cooldowns_total (Counter): Server cool-downs recorded from 429 responses
//
// Token Metrics (pkg/auth):
//   - asc_token_refreshes_total (Counter): Tokens signed
//
// Cache Metrics (pkg/cache):
//   - asc_cache_hits_total (Counter): Response cache hits
//   - asc_cache_misses_total (Counter): Response cache misses
//   - asc_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - asc_requests_total{endpoint, status} (Counter): Requests by endpoint and outcome
//   - asc_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - asc_errors_total{class} (Counter): Errors by class (auth, client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - asc_retries_total{error_class} (Counter): Retry attempts by error class
//   - asc_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - asc_retry_exhausted_total{error_class} (Counter): Requests that exhausted max attempts
//
// Example Prometheus Queries:
//
//   # Budget pressure
//   asc_rate_budget_remaining < 10
//
//   # Request error rate
//   rate(asc_errors_total[5m])
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(asc_request_duration_seconds_bucket[5m]))
//
//   # Cache hit rate
//   rate(asc_cache_hits_total[5m]) /
//   (rate(asc_cache_hits_total[5m]) + rate(asc_cache_misses_total[5m]))
