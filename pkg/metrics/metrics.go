// Package metrics provides Prometheus metrics for the Clover service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsTotal tracks resolution sessions by terminal status
	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "resolution",
			Name:      "sessions_total",
			Help:      "Total number of resolution sessions by status",
		},
		[]string{"status"},
	)

	// SessionDuration tracks resolution session duration in seconds
	SessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "resolution",
			Name:      "session_duration_seconds",
			Help:      "Duration of resolution sessions in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 1800},
		},
		[]string{"entity_type"},
	)

	// BlocksTotal tracks generated blocks by outcome (compared, skipped)
	BlocksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "blocking",
			Name:      "blocks_total",
			Help:      "Total number of blocks generated by outcome",
		},
		[]string{"entity_type", "outcome"},
	)

	// ComparisonsTotal tracks pairwise comparisons by result (match, no_match, error)
	ComparisonsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "matching",
			Name:      "comparisons_total",
			Help:      "Total number of pairwise comparisons by result",
		},
		[]string{"entity_type", "result"},
	)

	// MatchConfidence tracks the confidence distribution of produced matches
	MatchConfidence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "matching",
			Name:      "match_confidence",
			Help:      "Confidence of produced matches",
			Buckets:   []float64{0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1},
		},
		[]string{"entity_type", "action"},
	)

	// MergesTotal tracks merge attempts by outcome (success, failed, partial)
	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "merging",
			Name:      "merges_total",
			Help:      "Total number of merge attempts by outcome",
		},
		[]string{"outcome"},
	)

	// PendingDeletes tracks merged entities whose delete still has to be retried
	PendingDeletes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "clover",
			Subsystem: "merging",
			Name:      "pending_deletes",
			Help:      "Number of merged entities awaiting deletion",
		},
	)

	// StoreBreakerState tracks the entity store circuit breaker (0 closed, 1 half-open, 2 open)
	StoreBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "clover",
			Subsystem: "store",
			Name:      "breaker_state",
			Help:      "State of the entity store circuit breaker",
		},
		[]string{"name"},
	)

	// HTTPRequestsTotal tracks inbound API requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	// HTTPRequestDuration tracks inbound API request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of inbound HTTP requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 60},
		},
		[]string{"method", "route"},
	)
)
