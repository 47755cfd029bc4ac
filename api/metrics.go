package api

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts node chats served by the API.
type Metrics struct {
	Chats          *prometheus.CounterVec
	StreamedChunks prometheus.Counter
}

// NewMetrics creates the API metrics and registers them with reg when reg
// is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Chats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canvas_api_chats_total",
			Help: "Node chats served, by backend and outcome.",
		}, []string{"backend", "outcome"}),
		StreamedChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canvas_api_streamed_chunks_total",
			Help: "Chunks written to streaming chat responses.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Chats, m.StreamedChunks)
	}
	return m
}
