package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds process-level Prometheus metrics. Per-module metrics live in
// each module's metrics package.
type Metrics struct {
	RequestDuration *prometheus.HistogramVec
	EventsDropped   prometheus.Counter
	EventsDelivered *prometheus.CounterVec
}

// New creates and registers all process-level metrics.
func New() *Metrics {
	return &Metrics{
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "limsd_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route and status",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"route", "status"}),
		EventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "limsd_events_dropped_total",
			Help: "Domain events dropped because the dispatcher inbox was full",
		}),
		EventsDelivered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "limsd_events_delivered_total",
			Help: "Domain events delivered per sink",
		}, []string{"sink"}),
	}
}
