// Package metrics holds the Prometheus collectors for the credential
// pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailcode_outcomes_total",
			Help: "Total number of credential outcomes delivered",
		},
		[]string{"mode", "status"},
	)

	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailcode_pipeline_duration_seconds",
			Help:    "Duration of a single credential pipeline run in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"mode"},
	)

	PipelinesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mailcode_pipelines_in_flight",
			Help: "Number of credential pipelines currently running",
		},
	)

	TokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailcode_token_refresh_total",
			Help: "Token refresh attempts by backend and result",
		},
		[]string{"backend", "result"}, // result: success, rejected, fault
	)

	MailboxReadFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailcode_mailbox_read_failures_total",
			Help: "Mailbox reads that failed and were reported as empty",
		},
	)

	WorkerPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailcode_worker_panics_total",
			Help: "Pipeline panics recovered by batch workers",
		},
	)
)

// RecordOutcome counts a delivered outcome and observes its duration.
func RecordOutcome(mode, status string, duration time.Duration) {
	OutcomesTotal.WithLabelValues(mode, status).Inc()
	PipelineDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordTokenRefresh counts a token refresh attempt.
func RecordTokenRefresh(backend, result string) {
	TokenRefreshTotal.WithLabelValues(backend, result).Inc()
}
