// Package metrics defines the counters live-sync reports and their
// Prometheus implementations. Components accept the interfaces so metrics
// stay optional and testable.
package metrics

// ClientMetrics is reported by the connection manager and event router.
type ClientMetrics interface {
	// EventReceived records an inbound event routed to a rule.
	EventReceived(event string)
	// EventIgnored records an inbound event with no rule.
	EventIgnored(event string)
	// PrefixesInvalidated records the number of prefixes issued for one event.
	PrefixesInvalidated(event string, n int)
	// StateChanged records a connection state transition.
	StateChanged(state string)
	// ConnectionOpened records a new socket created for a credential.
	ConnectionOpened()
}

// ServerMetrics is reported by the fanout hub.
type ServerMetrics interface {
	// ConnectionOpened records an authenticated connection.
	ConnectionOpened()
	// ConnectionClosed records a closed connection.
	ConnectionClosed()
	// HandshakeFailed records a rejected handshake.
	HandshakeFailed()
	// FrameDelivered records a frame written to a connection.
	FrameDelivered(event string)
	// FrameDropped records a frame dropped for a slow connection.
	FrameDropped(event string)
}

// NoOpClientMetrics is a no-op implementation of ClientMetrics.
type NoOpClientMetrics struct{}

func (NoOpClientMetrics) EventReceived(string)            {}
func (NoOpClientMetrics) EventIgnored(string)             {}
func (NoOpClientMetrics) PrefixesInvalidated(string, int) {}
func (NoOpClientMetrics) StateChanged(string)             {}
func (NoOpClientMetrics) ConnectionOpened()               {}

// NoOpServerMetrics is a no-op implementation of ServerMetrics.
type NoOpServerMetrics struct{}

func (NoOpServerMetrics) ConnectionOpened()     {}
func (NoOpServerMetrics) ConnectionClosed()     {}
func (NoOpServerMetrics) HandshakeFailed()      {}
func (NoOpServerMetrics) FrameDelivered(string) {}
func (NoOpServerMetrics) FrameDropped(string)   {}
