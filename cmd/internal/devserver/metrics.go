package devserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the peer's collectors. A nil *Metrics records nothing.
type Metrics struct {
	Sessions    *prometheus.GaugeVec
	Generations *prometheus.CounterVec
	Rejected    *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		Sessions: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "codemonitor_devserver_sessions",
				Help: "Open websocket sessions by endpoint",
			},
			[]string{"endpoint"},
		),
		Generations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codemonitor_devserver_generations_total",
				Help: "Generations by surface and result",
			},
			[]string{"surface", "result"},
		),
		Rejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codemonitor_devserver_rejected_total",
				Help: "Rejected requests by reason",
			},
			[]string{"reason"},
		),
	}
}

func (m *Metrics) sessionOpen(endpoint string, delta float64) {
	if m == nil {
		return
	}
	m.Sessions.WithLabelValues(endpoint).Add(delta)
}

func (m *Metrics) generation(surface, result string) {
	if m == nil {
		return
	}
	m.Generations.WithLabelValues(surface, result).Inc()
}

func (m *Metrics) rejected(reason string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(reason).Inc()
}
