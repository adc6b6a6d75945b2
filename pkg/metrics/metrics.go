// Package metrics provides the Prometheus registry and HTTP handler for the
// batch fetcher. All metrics are defined in their respective packages
// (proxy, ratelimit, client, batch, store) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the batch fetcher.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves the metrics of the default gatherer.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{})
}

// Mux returns a ServeMux with Handler on /metrics and a liveness probe on
// /healthz.
func Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// Metrics Documentation
//
// Proxy Metrics (pkg/proxy):
//   - batchfetch_proxy_samples_total (Counter): Endpoints handed out by Sample
//   - batchfetch_proxy_verify_total{result} (Counter): Self-test calls by result (ok, error)
//
// Admission Metrics (pkg/ratelimit):
//   - batchfetch_bucket_tokens (Gauge): Token level after the last refill
//   - batchfetch_admissions_total (Counter): Tokens debited
//   - batchfetch_admission_waits_total (Counter): Backoff sleeps while waiting for a token
//   - batchfetch_admission_wait_seconds (Histogram): Time from Acquire to admission
//   - batchfetch_admission_failures_total{reason} (Counter): Acquire failures (starved, timeout, cancelled)
//
// Request Metrics (pkg/client):
//   - batchfetch_requests_total{host, outcome} (Counter): Requests by target host and outcome
//   - batchfetch_request_duration_seconds{host} (Histogram): Request duration by target host
//   - batchfetch_errors_total{class} (Counter): Failures by class
//
// Batch Metrics (pkg/batch):
//   - batchfetch_passes_total (Counter): Dispatch passes
//   - batchfetch_pass_duration_seconds (Histogram): Pass duration
//   - batchfetch_slots_resolved_total{status} (Counter): Finalized slots (completed, unresolved)
//   - batchfetch_pass_backoff_seconds (Histogram): Delay before retry passes
//
// Store Metrics (pkg/store):
//   - batchfetch_store_writes_total{backend} (Counter): Documents written (fs, redis)
//   - batchfetch_store_errors_total{backend, operation} (Counter): Failed store operations
//
// Example Prometheus Queries:
//
//   # Unresolved share
//   sum(rate(batchfetch_slots_resolved_total{status="unresolved"}[1h])) /
//   sum(rate(batchfetch_slots_resolved_total[1h]))
//
//   # Admission rate
//   rate(batchfetch_admissions_total[5m])
//
//   # Request Error Rate
//   sum by (class) (rate(batchfetch_errors_total[5m]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(batchfetch_request_duration_seconds_bucket[5m]))
