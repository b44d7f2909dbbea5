// ABOUTME: Prometheus instrumentation for correlation and connection lifecycles
// ABOUTME: Collectors are scoped to one gateway instance, not process globals

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors. Each gateway instance
// owns its own registry so tests can construct as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	// Correlation lifecycle
	CorrelationsRegistered prometheus.Counter
	CorrelationsResolved   prometheus.Counter
	CorrelationsExpired    prometheus.Counter
	CorrelationsDropped    prometheus.Counter

	// Push transport
	ActiveConnections prometheus.Gauge

	// Bus traffic
	InboundPublished prometheus.Counter
}

// New creates a Metrics instance with a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CorrelationsRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nanobot_correlations_registered_total",
			Help: "Total number of request correlations registered",
		}),
		CorrelationsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nanobot_correlations_resolved_total",
			Help: "Total number of correlations resolved by an agent reply",
		}),
		CorrelationsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nanobot_correlations_expired_total",
			Help: "Total number of correlations that timed out",
		}),
		CorrelationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nanobot_correlations_dropped_total",
			Help: "Total number of replies dropped with no pending waiter",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nanobot_websocket_connections",
			Help: "Number of currently registered WebSocket connections",
		}),
		InboundPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nanobot_inbound_published_total",
			Help: "Total number of inbound messages published to the bus",
		}),
	}

	m.registry.MustRegister(
		m.CorrelationsRegistered,
		m.CorrelationsResolved,
		m.CorrelationsExpired,
		m.CorrelationsDropped,
		m.ActiveConnections,
		m.InboundPublished,
	)
	return m
}

// Handler returns an HTTP handler exposing this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
