package realtime

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the client session collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ConnAttempts  *prometheus.CounterVec
	ConnsOpen     prometheus.Gauge
	FramesIn      *prometheus.CounterVec
	FramesOut     *prometheus.CounterVec
	FramesDropped *prometheus.CounterVec
	ReadyWait     prometheus.Histogram
	Exchanges     *prometheus.CounterVec
	Violations    *prometheus.CounterVec
	RoomMembers   prometheus.Gauge
}

// NewMetrics registers the collectors on reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		ConnAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codemonitor_ws_connect_total",
				Help: "Connection attempts by endpoint kind and result",
			},
			[]string{"endpoint", "result"},
		),
		ConnsOpen: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "codemonitor_ws_connections_open",
				Help: "Connections currently open",
			},
		),
		FramesIn: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codemonitor_ws_frames_in_total",
				Help: "Decoded inbound frames by event type",
			},
			[]string{"type"},
		),
		FramesOut: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codemonitor_ws_frames_out_total",
				Help: "Frames written by endpoint kind",
			},
			[]string{"endpoint"},
		),
		FramesDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codemonitor_ws_frames_dropped_total",
				Help: "Frames dropped by direction and reason",
			},
			[]string{"direction", "reason"},
		),
		ReadyWait: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "codemonitor_ws_ready_wait_seconds",
				Help:    "Time spent waiting for a connection to open before a submit",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		Exchanges: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codemonitor_exchanges_total",
				Help: "Finished exchanges by surface and outcome",
			},
			[]string{"surface", "outcome"},
		),
		Violations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codemonitor_protocol_violations_total",
				Help: "Out-of-order stream events tolerated by the sessions",
			},
			[]string{"surface", "kind"},
		),
		RoomMembers: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "codemonitor_room_members",
				Help: "Members seen in the current room, self excluded",
			},
		),
	}
}

func (m *Metrics) connectResult(endpoint, result string) {
	if m == nil {
		return
	}
	m.ConnAttempts.WithLabelValues(endpoint, result).Inc()
}

func (m *Metrics) opened() {
	if m == nil {
		return
	}
	m.ConnsOpen.Inc()
}

func (m *Metrics) closed() {
	if m == nil {
		return
	}
	m.ConnsOpen.Dec()
}

func (m *Metrics) frameIn(typ string) {
	if m == nil {
		return
	}
	m.FramesIn.WithLabelValues(typ).Inc()
}

func (m *Metrics) frameOut(endpoint string) {
	if m == nil {
		return
	}
	m.FramesOut.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) dropped(direction, reason string) {
	if m == nil {
		return
	}
	m.FramesDropped.WithLabelValues(direction, reason).Inc()
}

func (m *Metrics) readyWait(d time.Duration) {
	if m == nil {
		return
	}
	m.ReadyWait.Observe(d.Seconds())
}

func (m *Metrics) exchange(surface string, o Outcome) {
	if m == nil {
		return
	}
	m.Exchanges.WithLabelValues(surface, o.String()).Inc()
}

func (m *Metrics) violation(surface, kind string) {
	if m == nil {
		return
	}
	m.Violations.WithLabelValues(surface, kind).Inc()
}

func (m *Metrics) members(n int) {
	if m == nil {
		return
	}
	m.RoomMembers.Set(float64(n))
}
