package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the dispatcher's Prometheus collectors.
type Metrics struct {
	InFlight prometheus.Gauge
	Queued   prometheus.Gauge
	Requests *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "canvas",
			Subsystem: "dispatch",
			Name:      "in_flight_requests",
			Help:      "Requests currently admitted and awaiting completion.",
		}),
		Queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "canvas",
			Subsystem: "dispatch",
			Name:      "queued_requests",
			Help:      "Requests waiting for a concurrency slot.",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "canvas",
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Completed requests by outcome.",
		}, []string{"method", "outcome"}),
	}

	if reg != nil {
		reg.MustRegister(m.InFlight, m.Queued, m.Requests)
	}
	return m
}
