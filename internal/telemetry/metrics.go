// Package telemetry exposes Prometheus metrics for the engine.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. Safe for concurrent use.
type Metrics struct {
	DispatchRequests  *prometheus.CounterVec
	SignalsIngested   *prometheus.CounterVec
	AssessmentScores  prometheus.Histogram
	BlocksApplied     prometheus.Counter
	BlockFailures     prometheus.Counter
	RestoresCompleted prometheus.Counter
	RestoreFailures   prometheus.Counter
}

// New registers the engine's collectors with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		DispatchRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guardian",
			Name:      "dispatch_requests_total",
			Help:      "Dispatch requests by intent and result status.",
		}, []string{"intent", "status"}),
		SignalsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guardian",
			Name:      "signals_ingested_total",
			Help:      "Normalized signals appended to the log, by kind.",
		}, []string{"kind"}),
		AssessmentScores: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "guardian",
			Name:      "assessment_score",
			Help:      "Distribution of composite risk scores.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		BlocksApplied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "guardian",
			Name:      "blocks_applied_total",
			Help:      "Access blocks successfully applied.",
		}),
		BlockFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "guardian",
			Name:      "block_failures_total",
			Help:      "Access block attempts that failed and were reverted.",
		}),
		RestoresCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "guardian",
			Name:      "restores_completed_total",
			Help:      "Access restores completed.",
		}),
		RestoreFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "guardian",
			Name:      "restore_failures_total",
			Help:      "Access restore attempts that failed and were reverted.",
		}),
	}
}

// NewDefault registers the collectors with the default registry.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}
