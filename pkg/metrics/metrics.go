// Package metrics provides the centralized Prometheus registry reference for
// the dashboard API client. Metrics are defined next to the code they
// instrument (pkg/client) to maintain modularity; this package documents
// what is available.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the client.
// All metrics are automatically registered via promauto in pkg/client.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - dashboard_api_requests_total{endpoint, status} (Counter): Requests by endpoint and outcome
//   - dashboard_api_request_duration_seconds{endpoint} (Histogram): Attempt duration by endpoint
//   - dashboard_api_errors_total{kind} (Counter): Terminal errors by classification
//
// Retry Metrics (pkg/client):
//   - dashboard_api_retries_total{kind} (Counter): Retry attempts by error kind
//   - dashboard_api_retry_backoff_seconds{kind} (Histogram): Backoff duration by error kind
//   - dashboard_api_retry_exhausted_total{kind} (Counter): Calls that exhausted max retries
//
// Example Prometheus Queries:
//
//   # Terminal error rate
//   rate(dashboard_api_errors_total[5m])
//
//   # Retry pressure by kind
//   sum by (kind) (rate(dashboard_api_retries_total[5m]))
//
//   # P95 attempt latency
//   histogram_quantile(0.95, rate(dashboard_api_request_duration_seconds_bucket[5m]))
