// Package metrics holds the Prometheus collectors exposed at /metrics.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for ingestion, provider calls and imports.
type Metrics struct {
	// Ingestion
	FeedbackIngestedTotal *prometheus.CounterVec

	// Provider calls
	ProviderRequestsTotal *prometheus.CounterVec
	ProviderDuration      *prometheus.HistogramVec

	// Batch imports
	ImportJobsTotal  *prometheus.CounterVec
	ImportRowsTotal  *prometheus.CounterVec
	ImportJobsActive prometheus.Gauge
}

// NewMetrics creates and registers the collectors with the default registry.
//
// Registration happens once per process; later calls return the same instance.
//
// Metrics:
//   - feedback_ingested_total{source,outcome} - items stored, by classification outcome
//   - feedback_provider_requests_total{operation,provider,outcome} - provider calls
//   - feedback_provider_request_duration_seconds{operation,provider} - provider latency
//   - feedback_import_jobs_total{kind,status} - finished import jobs
//   - feedback_import_rows_total{kind,outcome} - processed import rows
//   - feedback_import_jobs_active - jobs currently running
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			FeedbackIngestedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "feedback",
					Name:      "ingested_total",
					Help:      "Total number of feedback items stored",
				},
				[]string{"source", "outcome"}, // "classified", "unclassified", "skipped"
			),

			ProviderRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "feedback",
					Subsystem: "provider",
					Name:      "requests_total",
					Help:      "Total number of AI provider calls",
				},
				[]string{"operation", "provider", "outcome"}, // outcome: "ok" or "error"
			),

			ProviderDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "feedback",
					Subsystem: "provider",
					Name:      "request_duration_seconds",
					Help:      "Duration of AI provider calls including retries",
					Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
				},
				[]string{"operation", "provider"},
			),

			ImportJobsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "feedback",
					Subsystem: "import",
					Name:      "jobs_total",
					Help:      "Total number of finished import jobs",
				},
				[]string{"kind", "status"},
			),

			ImportRowsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "feedback",
					Subsystem: "import",
					Name:      "rows_total",
					Help:      "Total number of processed import rows",
				},
				[]string{"kind", "outcome"}, // "ok" or "error"
			),

			ImportJobsActive: promauto.NewGauge(
				prometheus.GaugeOpts{
					Namespace: "feedback",
					Subsystem: "import",
					Name:      "jobs_active",
					Help:      "Number of import jobs currently running",
				},
			),
		}
	})
	return globalMetrics
}

// RecordIngest counts one stored feedback item.
func (m *Metrics) RecordIngest(source, outcome string) {
	if m == nil {
		return
	}
	m.FeedbackIngestedTotal.WithLabelValues(source, outcome).Inc()
}

// RecordProviderCall records the outcome and latency of one provider operation.
func (m *Metrics) RecordProviderCall(operation, provider string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ProviderRequestsTotal.WithLabelValues(operation, provider, outcome).Inc()
	m.ProviderDuration.WithLabelValues(operation, provider).Observe(time.Since(start).Seconds())
}

// RecordImportRow counts one processed import row.
func (m *Metrics) RecordImportRow(kind string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.ImportRowsTotal.WithLabelValues(kind, outcome).Inc()
}

// ImportStarted marks a job as running.
func (m *Metrics) ImportStarted() {
	if m == nil {
		return
	}
	m.ImportJobsActive.Inc()
}

// ImportFinished records a job reaching a terminal status.
func (m *Metrics) ImportFinished(kind, status string) {
	if m == nil {
		return
	}
	m.ImportJobsActive.Dec()
	m.ImportJobsTotal.WithLabelValues(kind, status).Inc()
}
