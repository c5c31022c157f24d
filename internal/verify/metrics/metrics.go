// Package metrics exposes the verification pipeline's Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the verification pipeline instrumentation.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	ConfidenceScore prometheus.Histogram
	CheckerOutcomes *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
}

// New registers the verification metrics with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "veristry",
			Subsystem: "verify",
			Name:      "requests_total",
			Help:      "Verification requests by terminal status.",
		}, []string{"status"}),
		RequestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "veristry",
			Subsystem: "verify",
			Name:      "request_duration_seconds",
			Help:      "End-to-end verification latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		ConfidenceScore: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "veristry",
			Subsystem: "verify",
			Name:      "confidence_score",
			Help:      "Distribution of final confidence scores.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		CheckerOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "veristry",
			Subsystem: "verify",
			Name:      "checker_outcomes_total",
			Help:      "Checker invocations by dependency and result.",
		}, []string{"dependency", "result"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "veristry",
			Subsystem: "verify",
			Name:      "cache_lookups_total",
			Help:      "Cache layer consults by result.",
		}, []string{"result"}),
	}
}
