// Package metrics exposes investigation workflow counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Opened *prometheus.CounterVec
	Closed prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Opened: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "limsd",
			Subsystem: "investigation",
			Name:      "opened_total",
			Help:      "Investigations opened, by trigger source and severity.",
		}, []string{"source", "severity"}),
		Closed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "limsd",
			Subsystem: "investigation",
			Name:      "closed_total",
			Help:      "Investigations closed.",
		}),
	}
}

func (m *Metrics) IncOpened(source, severity string) {
	if m == nil {
		return
	}
	m.Opened.WithLabelValues(source, severity).Inc()
}

func (m *Metrics) IncClosed() {
	if m == nil {
		return
	}
	m.Closed.Inc()
}
