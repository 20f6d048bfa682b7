package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "livesync"

// PrometheusClientMetrics implements ClientMetrics with Prometheus collectors.
type PrometheusClientMetrics struct {
	// EventsReceived counts inbound events by name.
	EventsReceived *prometheus.CounterVec
	// EventsIgnored counts inbound events without a rule.
	EventsIgnored *prometheus.CounterVec
	// Invalidations counts prefixes issued to the query cache by event name.
	Invalidations *prometheus.CounterVec
	// StateTransitions counts connection state transitions by target state.
	StateTransitions *prometheus.CounterVec
	// Connections counts sockets opened for a credential.
	Connections prometheus.Counter
}

// NewClientMetrics creates and registers the client collectors on reg.
func NewClientMetrics(reg prometheus.Registerer) *PrometheusClientMetrics {
	factory := promauto.With(reg)
	return &PrometheusClientMetrics{
		EventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "events_received_total",
			Help:      "Inbound realtime events routed to an invalidation rule.",
		}, []string{"event"}),
		EventsIgnored: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "events_ignored_total",
			Help:      "Inbound realtime events with no invalidation rule.",
		}, []string{"event"}),
		Invalidations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "invalidated_prefixes_total",
			Help:      "Cache-key prefixes invalidated, by triggering event.",
		}, []string{"event"}),
		StateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "state_transitions_total",
			Help:      "Connection state transitions, by target state.",
		}, []string{"state"}),
		Connections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "connections_opened_total",
			Help:      "Sockets opened for a credential.",
		}),
	}
}

func (m *PrometheusClientMetrics) EventReceived(event string) {
	m.EventsReceived.WithLabelValues(event).Inc()
}

// EventIgnored collapses names into one label value: unknown names come from
// the server and are unbounded.
func (m *PrometheusClientMetrics) EventIgnored(string) {
	m.EventsIgnored.WithLabelValues("unknown").Inc()
}

func (m *PrometheusClientMetrics) PrefixesInvalidated(event string, n int) {
	m.Invalidations.WithLabelValues(event).Add(float64(n))
}

func (m *PrometheusClientMetrics) StateChanged(state string) {
	m.StateTransitions.WithLabelValues(state).Inc()
}

func (m *PrometheusClientMetrics) ConnectionOpened() {
	m.Connections.Inc()
}

// PrometheusServerMetrics implements ServerMetrics with Prometheus collectors.
type PrometheusServerMetrics struct {
	// ConnectionsActive is the number of authenticated connections.
	ConnectionsActive prometheus.Gauge
	// ConnectionsTotal counts authenticated connections since startup.
	ConnectionsTotal prometheus.Counter
	// HandshakeFailures counts rejected handshakes.
	HandshakeFailures prometheus.Counter
	// FramesDelivered counts frames written to connections by event.
	FramesDelivered *prometheus.CounterVec
	// FramesDropped counts frames dropped for slow connections by event.
	FramesDropped *prometheus.CounterVec
}

// NewServerMetrics creates and registers the hub collectors on reg.
func NewServerMetrics(reg prometheus.Registerer) *PrometheusServerMetrics {
	factory := promauto.With(reg)
	return &PrometheusServerMetrics{
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "connections_active",
			Help:      "Current number of authenticated connections.",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "connections_total",
			Help:      "Authenticated connections since startup.",
		}),
		HandshakeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "handshake_failures_total",
			Help:      "Rejected connection handshakes.",
		}),
		FramesDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "frames_delivered_total",
			Help:      "Frames written to connections.",
		}, []string{"event"}),
		FramesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped because a connection could not keep up.",
		}, []string{"event"}),
	}
}

func (m *PrometheusServerMetrics) ConnectionOpened() {
	m.ConnectionsActive.Inc()
	m.ConnectionsTotal.Inc()
}

func (m *PrometheusServerMetrics) ConnectionClosed() {
	m.ConnectionsActive.Dec()
}

func (m *PrometheusServerMetrics) HandshakeFailed() {
	m.HandshakeFailures.Inc()
}

func (m *PrometheusServerMetrics) FrameDelivered(event string) {
	m.FramesDelivered.WithLabelValues(event).Inc()
}

func (m *PrometheusServerMetrics) FrameDropped(event string) {
	m.FramesDropped.WithLabelValues(event).Inc()
}
