// Package telemetry provides logging and run metrics for the CLI.
//
// # Metrics
//
// All metrics are registered against the default Prometheus registry. The CLI
// is short-lived, so instead of serving /metrics it pushes the registry to a
// Pushgateway when a command finishes (see Push):
//
//	telemetry:
//	  metrics:
//	    enabled: true
//	    pushgateway_url: http://pushgateway:9091
//
// # Metric Groups
//
//   - Audit item outcomes per operation and scope
//   - Web API request counters and latency histograms
//
// # Label Cardinality
//
// API metrics are labelled by HTTP method and status only, never by URL, since
// entity ids and logical names would make the label set unbounded.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// AuditItemsTotal is a CounterVec with labels {operation, scope, outcome}.
// operation is enable or disable, scope is table or column, outcome is one of
// changed, failed, locked, unchanged.
//
// Example PromQL queries:
//   - Failed items per run:   sum by (scope) (increase(dvc_audit_items_total{outcome="failed"}[1h]))
//   - Locked share (%):       sum(dvc_audit_items_total{outcome="locked"}) / sum(dvc_audit_items_total) * 100
var AuditItemsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dvc_audit_items_total",
		Help: "Total number of audit items processed, by operation, scope, and outcome.",
	},
	[]string{"operation", "scope", "outcome"},
)

// Web API metrics, labelled by method and status code.
//
// APIRequestsTotal uses status "error" for transport failures that produced no response.
//
// Example PromQL queries:
//   - Throttled requests:  sum(dvc_api_requests_total{status="429"})
//   - p95 latency:         histogram_quantile(0.95, sum by (le) (rate(dvc_api_request_duration_seconds_bucket[5m])))
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dvc_api_requests_total",
			Help: "Total number of Dataverse Web API requests, by method and status code.",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dvc_api_request_duration_seconds",
			Help:    "Histogram of Dataverse Web API request latencies, by method.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method"},
	)
)

// Push sends the default registry to the Pushgateway at url under job. An
// empty url is a no-op.
func Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	err := push.New(url, job).
		Gatherer(prometheus.DefaultGatherer).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	slog.Debug("metrics pushed", "url", url, "job", job)
	return nil
}
