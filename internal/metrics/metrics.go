// Package metrics provides Prometheus metrics for pawwatch.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "pawwatch"
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks concurrent HTTP requests.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)
)

// Pipeline metrics
var (
	// PipelineRunsTotal counts pipeline runs by trigger (evaluation, weight).
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total alert pipeline runs",
		},
		[]string{"trigger"},
	)

	// PipelineRunDuration tracks how long a pipeline run takes.
	PipelineRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Alert pipeline run latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"trigger"},
	)

	// PipelinePanicsTotal counts runs that panicked and were recovered.
	PipelinePanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "panics_total",
			Help:      "Alert pipeline runs recovered from a panic",
		},
	)

	// CandidatesTotal counts alert candidates produced by the rules.
	CandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "candidates_total",
			Help:      "Alert candidates produced by rule evaluation",
		},
		[]string{"kind"},
	)

	// SuppressedTotal counts candidates dropped by the cooldown.
	SuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "suppressed_total",
			Help:      "Alert candidates dropped by the cooldown window",
		},
		[]string{"kind"},
	)

	// RuleErrorsTotal counts rules skipped because of invalid input.
	RuleErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "rule_errors_total",
			Help:      "Rules skipped because their input was invalid",
		},
		[]string{"metric"},
	)

	// ThresholdReloadsTotal counts threshold file reloads by result.
	ThresholdReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "threshold_reloads_total",
			Help:      "Threshold file reloads",
		},
		[]string{"result"},
	)
)

// Notification metrics
var (
	// NotificationsTotal counts notification deliveries by sink and status.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "sent_total",
			Help:      "Notification deliveries by sink and status",
		},
		[]string{"sink", "status"},
	)

	// NotificationsRateLimited counts deliveries abandoned while waiting on the limiter.
	NotificationsRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "rate_limited_total",
			Help:      "Notifications abandoned by the dispatch rate limiter",
		},
	)
)

// Storage metrics
var (
	// StorageQueryDuration tracks store operation latency.
	StorageQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "query_duration_seconds",
			Help:      "Store operation latency in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// StorageErrors counts store errors seen by the pipeline.
	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "errors_total",
			Help:      "Store errors by operation",
		},
		[]string{"operation"},
	)
)

// Build info
var (
	// BuildInfo exposes version information.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_time"},
	)
)

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, commit, buildTime string) {
	BuildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}
