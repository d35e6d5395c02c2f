// Package metrics provides Prometheus metrics for callwatch.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "callwatch"
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
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
)

// Engine metrics
var (
	// LogsEvaluatedTotal counts logs taken through rule evaluation.
	LogsEvaluatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "logs_evaluated_total",
			Help:      "Total number of logs evaluated against monitoring rules",
		},
	)

	// LogErrorsTotal counts logs whose evaluation failed.
	LogErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "log_errors_total",
			Help:      "Total number of logs whose evaluation failed",
		},
	)

	// RuleMatchesTotal counts rule matches by pattern type.
	RuleMatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "rule_matches_total",
			Help:      "Total number of rule matches by pattern type",
		},
		[]string{"pattern_type"},
	)

	// PassDuration tracks the duration of a processing pass.
	PassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "pass_duration_seconds",
			Help:      "Duration of a processing pass in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	// PassesSkippedTotal counts passes skipped because another pass held the lock.
	PassesSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "passes_skipped_total",
			Help:      "Total number of passes skipped because the pass lock was held",
		},
	)
)

// Action metrics
var (
	// ActionsDispatchedTotal counts action executions by type and result.
	ActionsDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "actions",
			Name:      "dispatched_total",
			Help:      "Total number of action executions by type and result",
		},
		[]string{"action_type", "result"},
	)

	// ActionDuration tracks action execution latency.
	ActionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "actions",
			Name:      "duration_seconds",
			Help:      "Action execution latency in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"action_type"},
	)

	// WebhookAttemptsTotal counts individual webhook HTTP attempts.
	WebhookAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "actions",
			Name:      "webhook_attempts_total",
			Help:      "Total number of webhook HTTP attempts by outcome",
		},
		[]string{"outcome"},
	)
)

// Ingest metrics
var (
	// LogsIngestedTotal counts newly stored logs by type.
	LogsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "logs_total",
			Help:      "Total number of logs ingested by type",
		},
		[]string{"log_type"},
	)

	// IngestDuplicatesTotal counts provider records skipped as already stored.
	IngestDuplicatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "duplicates_total",
			Help:      "Total number of provider records skipped as duplicates",
		},
	)
)

// Result labels.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// ResultLabel maps a success flag to a result label.
func ResultLabel(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailure
}
