package server

import (
	"net/http"

	"github.com/Tyrowin/gochat-relay/internal/relay"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes relay traffic to Prometheus. It implements relay.Recorder.
// Each App owns its own registry so tests can run several side by side.
type Metrics struct {
	registry    *prometheus.Registry
	connections prometheus.Gauge
	received    *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	dispatched  *prometheus.CounterVec
}

var _ relay.Recorder = (*Metrics)(nil)

// NewMetrics registers the relay collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connections",
			Help: "Live WebSocket connections.",
		}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_events_received_total",
			Help: "Inbound events routed, by event name.",
		}, []string{"event"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_events_dropped_total",
			Help: "Inbound events dropped, by event name and reason.",
		}, []string{"event", "reason"}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_dispatches_total",
			Help: "Outbound dispatches, by event name and result.",
		}, []string{"event", "result"}),
	}
	m.registry.MustRegister(m.connections, m.received, m.dropped, m.dispatched)
	return m
}

// EventReceived counts an inbound event handed to the router.
func (m *Metrics) EventReceived(kind relay.Kind) {
	m.received.WithLabelValues(string(kind)).Inc()
}

// EventDropped counts an inbound event the relay refused, labelled by reason.
func (m *Metrics) EventDropped(kind relay.Kind, reason string) {
	m.dropped.WithLabelValues(string(kind), reason).Inc()
}

// Dispatched counts one outbound send, ok or failed.
func (m *Metrics) Dispatched(kind relay.Kind, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.dispatched.WithLabelValues(string(kind), result).Inc()
}

func (m *Metrics) connectionOpened() { m.connections.Inc() }
func (m *Metrics) connectionClosed() { m.connections.Dec() }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
