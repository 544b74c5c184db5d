package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RealtimeMetrics tracks the websocket delivery bus.
type RealtimeMetrics struct {
	connections prometheus.Gauge
	emitted     *prometheus.CounterVec
	dropped     prometheus.Counter
	relayErrors prometheus.Counter
}

// NewRealtimeMetrics registers bus metrics on reg. A nil registerer yields no-op metrics.
func NewRealtimeMetrics(reg prometheus.Registerer) *RealtimeMetrics {
	if reg == nil {
		return &RealtimeMetrics{}
	}
	connections := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "connections",
		Help:      "Open websocket connections on this instance.",
	})
	emitted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "events_emitted_total",
		Help:      "Events emitted onto the delivery bus.",
	}, []string{"event"})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "dropped_sends_total",
		Help:      "Sends dropped because a connection's queue was full.",
	})
	relayErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "relay_errors_total",
		Help:      "Relay publish or decode failures.",
	})
	reg.MustRegister(connections, emitted, dropped, relayErrors)
	return &RealtimeMetrics{
		connections: connections,
		emitted:     emitted,
		dropped:     dropped,
		relayErrors: relayErrors,
	}
}

// ConnectionOpened increments the open connection gauge.
func (m *RealtimeMetrics) ConnectionOpened() {
	if m == nil || m.connections == nil {
		return
	}
	m.connections.Inc()
}

// ConnectionClosed decrements the open connection gauge.
func (m *RealtimeMetrics) ConnectionClosed() {
	if m == nil || m.connections == nil {
		return
	}
	m.connections.Dec()
}

// IncEmitted counts an emitted event.
func (m *RealtimeMetrics) IncEmitted(event string) {
	if m == nil || m.emitted == nil {
		return
	}
	m.emitted.WithLabelValues(normalizeLabel(event)).Inc()
}

// IncDropped counts a send dropped for a slow connection.
func (m *RealtimeMetrics) IncDropped() {
	if m == nil || m.dropped == nil {
		return
	}
	m.dropped.Inc()
}

// IncRelayError counts a relay failure.
func (m *RealtimeMetrics) IncRelayError() {
	if m == nil || m.relayErrors == nil {
		return
	}
	m.relayErrors.Inc()
}
