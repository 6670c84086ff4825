package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tickerhub/internal/application/port"
)

// Metrics owns its registry so tests and multiple instances never collide
// on the global default.
type Metrics struct {
	registry *prometheus.Registry

	connected *prometheus.GaugeVec
	ticks     *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	reconnect *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tickerhub_upstream_connected",
			Help: "1 when the upstream feed connection is open.",
		}, []string{"upstream"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tickerhub_ticks_total",
			Help: "Ticks applied to the board.",
		}, []string{"upstream"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tickerhub_dropped_messages_total",
			Help: "Upstream frames that produced no tick.",
		}, []string{"upstream"}),
		reconnect: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tickerhub_connection_attempts_total",
			Help: "Connection attempts per upstream.",
		}, []string{"upstream"}),
	}
	m.registry.MustRegister(m.connected, m.ticks, m.dropped, m.reconnect)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the exposition format for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveState is a port.StateListener.
func (m *Metrics) ObserveState(upstream string, state port.ConnectionState, _ bool) {
	switch state {
	case port.StateConnected:
		m.connected.WithLabelValues(upstream).Set(1)
	case port.StateConnecting:
		m.reconnect.WithLabelValues(upstream).Inc()
		m.connected.WithLabelValues(upstream).Set(0)
	default:
		m.connected.WithLabelValues(upstream).Set(0)
	}
}

func (m *Metrics) ObserveTick(upstream string) {
	m.ticks.WithLabelValues(upstream).Inc()
}

func (m *Metrics) ObserveDrop(upstream string) {
	m.dropped.WithLabelValues(upstream).Inc()
}
