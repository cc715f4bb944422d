// Package metrics provides the centralized Prometheus registry reference for
// the client. All metrics are defined in their respective packages (client,
// throttle, pagination, upload, sessionstore) to maintain modularity and
// avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the client. All
// metrics are automatically registered via promauto in their respective
// packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - wiki_requests_total{action, status} (Counter): Logical requests by action and HTTP status
//   - wiki_request_duration_seconds{action} (Histogram): Logical request duration, retries included
//   - wiki_errors_total{kind} (Counter): Errors by kind (rate_limited, read_only, network, ...)
//
// Retry Metrics (pkg/client):
//   - wiki_retries_total{error_kind} (Counter): Billed retry attempts by error kind
//   - wiki_retry_exhausted_total{error_kind} (Counter): Requests that exhausted the retry budget
//   - wiki_lag_waits_total (Counter): Proactive replication-lag waits (never billed)
//   - wiki_lag_wait_seconds (Histogram): Duration of proactive lag waits
//
// Throttle Metrics (pkg/throttle):
//   - wiki_throttle_wait_seconds (Histogram): Time spent waiting for the write throttle
//   - wiki_throttle_acquisitions_total (Counter): Write-throttle acquisitions
//
// Pagination Metrics (pkg/pagination):
//   - wiki_pages_fetched_total{action} (Counter): Pagination pages fetched
//   - wiki_pagination_items_total{action} (Counter): Items decoded across all pages
//
// Upload Metrics (pkg/upload):
//   - wiki_upload_chunks_total (Counter): Chunk requests issued
//   - wiki_upload_bytes_total (Counter): Payload bytes uploaded
//   - wiki_upload_sessions_total{outcome} (Counter): Upload sessions by outcome (done, failed)
//
// Snapshot Metrics (pkg/sessionstore):
//   - wiki_snapshot_ops_total{operation, outcome} (Counter): Snapshot store operations
//
// Example Prometheus Queries:
//
//   # Retry Rate by Kind
//   rate(wiki_retries_total[5m])
//
//   # Share of Requests Hitting Replication Lag
//   rate(wiki_lag_waits_total[5m]) / rate(wiki_requests_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(wiki_request_duration_seconds_bucket[5m]))
//
//   # Upload Failure Ratio
//   rate(wiki_upload_sessions_total{outcome="failed"}[1h]) /
//   rate(wiki_upload_sessions_total[1h])
