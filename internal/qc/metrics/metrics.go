// Package metrics exposes Prometheus counters for the QC engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	PointsRecorded prometheus.Counter
	Violations     *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PointsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "limsd_qc_points_recorded_total",
			Help: "Control chart measurements recorded",
		}),
		Violations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "limsd_qc_violations_total",
			Help: "Westgard rule violations, by rule",
		}, []string{"rule"}),
	}
}

func (m *Metrics) IncPoint() {
	if m == nil {
		return
	}
	m.PointsRecorded.Inc()
}

func (m *Metrics) IncViolation(rule string) {
	if m == nil {
		return
	}
	m.Violations.WithLabelValues(rule).Inc()
}
