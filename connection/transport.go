// Package connection keeps exactly one realtime socket open per credential.
//
// A Transport opens Sockets; the Manager decides when. Retry and backoff of
// an individual socket belong to the transport, the Manager only replaces or
// closes sockets when the credential changes.
package connection

import (
	"encoding/json"
	"errors"
)

// Status is a lifecycle notification emitted by a Socket.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusConnectError Status = "connect_error"
)

// Handler receives the data of one named event.
type Handler func(data json.RawMessage)

// StatusHandler receives socket lifecycle notifications. err is set for
// StatusConnectError and, when known, for StatusDisconnected.
type StatusHandler func(status Status, err error)

// Socket is one authenticated realtime connection.
type Socket interface {
	// ID uniquely identifies the socket instance.
	ID() string
	// On registers the handler for event, replacing any previous one.
	// Events of one socket are delivered sequentially in receipt order.
	On(event string, h Handler)
	// OnStatus registers a lifecycle observer.
	OnStatus(h StatusHandler)
	// Connect starts connecting in the background.
	Connect()
	// Disconnect closes the socket. Once it returns no event handler is
	// invoked. It must not be called from an event handler.
	Disconnect()
}

// Transport creates sockets bound to one credential.
type Transport interface {
	Open(url, token string) Socket
}

var (
	// ErrHandshakeRejected is reported when the server refuses the credential.
	ErrHandshakeRejected = errors.New("handshake rejected")
	// ErrHandshakeFailed is reported when the server answers the handshake
	// with something other than an acknowledgement or a rejection.
	ErrHandshakeFailed = errors.New("handshake failed")
)
