// Package metrics exposes Prometheus counters for the sample workflow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SamplesRegistered prometheus.Counter
	ResultsEntered    *prometheus.CounterVec
	Reviews           *prometheus.CounterVec
	VersionConflicts  prometheus.Counter
}

// New registers the sample workflow metrics with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SamplesRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "limsd_samples_registered_total",
			Help: "Samples created through job registration",
		}),
		ResultsEntered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "limsd_results_entered_total",
			Help: "Test results entered, by range outcome",
		}, []string{"outcome"}),
		Reviews: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "limsd_reviews_total",
			Help: "Review decisions, by action",
		}, []string{"action"}),
		VersionConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "limsd_sample_version_conflicts_total",
			Help: "Optimistic writes rejected because the sample version moved",
		}),
	}
}

// The increment helpers are nil-safe so services can run without metrics
// wired, e.g. in unit tests.

func (m *Metrics) IncRegistered(n int) {
	if m == nil {
		return
	}
	m.SamplesRegistered.Add(float64(n))
}

func (m *Metrics) IncResult(outOfRange bool) {
	if m == nil {
		return
	}
	outcome := "in_range"
	if outOfRange {
		outcome = "out_of_range"
	}
	m.ResultsEntered.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncReview(action string) {
	if m == nil {
		return
	}
	m.Reviews.WithLabelValues(action).Inc()
}

func (m *Metrics) IncConflict() {
	if m == nil {
		return
	}
	m.VersionConflicts.Inc()
}
