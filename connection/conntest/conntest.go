// Package conntest provides an in-memory connection.Transport for tests.
package conntest

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/huykn/live-sync/connection"
)

// Transport records every socket it opens.
type Transport struct {
	mu      sync.Mutex
	sockets []*Socket
}

// NewTransport creates an empty fake transport.
func NewTransport() *Transport {
	return &Transport{}
}

func (t *Transport) Open(url, token string) connection.Socket {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := &Socket{
		id:       fmt.Sprintf("fake-%d", len(t.sockets)+1),
		URL:      url,
		Token:    token,
		handlers: make(map[string]connection.Handler),
	}
	t.sockets = append(t.sockets, s)
	return s
}

// Sockets returns every socket opened so far, oldest first.
func (t *Transport) Sockets() []*Socket {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Socket(nil), t.sockets...)
}

// Last returns the most recently opened socket, or nil.
func (t *Transport) Last() *Socket {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.sockets) == 0 {
		return nil
	}
	return t.sockets[len(t.sockets)-1]
}

// Live returns the sockets that were connected and not disconnected.
func (t *Transport) Live() []*Socket {
	var live []*Socket
	for _, s := range t.Sockets() {
		if s.Connects() > 0 && s.Disconnects() == 0 {
			live = append(live, s)
		}
	}
	return live
}

// Socket is a fake connection.Socket. Emit keeps working after Disconnect
// so tests can simulate events that arrive late on a replaced socket.
type Socket struct {
	id    string
	URL   string
	Token string

	mu          sync.Mutex
	handlers    map[string]connection.Handler
	statuses    []connection.StatusHandler
	connects    int
	disconnects int
}

func (s *Socket) ID() string { return s.id }

func (s *Socket) On(event string, h connection.Handler) {
	s.mu.Lock()
	s.handlers[event] = h
	s.mu.Unlock()
}

func (s *Socket) OnStatus(h connection.StatusHandler) {
	s.mu.Lock()
	s.statuses = append(s.statuses, h)
	s.mu.Unlock()
}

func (s *Socket) Connect() {
	s.mu.Lock()
	s.connects++
	s.mu.Unlock()
}

func (s *Socket) Disconnect() {
	s.mu.Lock()
	s.disconnects++
	s.mu.Unlock()
}

// Emit delivers event with payload marshalled as JSON to the registered
// handler. It reports whether a handler was registered.
func (s *Socket) Emit(event string, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return s.EmitRaw(event, data)
}

// EmitRaw delivers event with data as is.
func (s *Socket) EmitRaw(event string, data json.RawMessage) bool {
	s.mu.Lock()
	h, ok := s.handlers[event]
	s.mu.Unlock()
	if !ok {
		return false
	}
	h(data)
	return true
}

// SetStatus reports a lifecycle status to the registered observers.
func (s *Socket) SetStatus(status connection.Status, err error) {
	s.mu.Lock()
	fns := append([]connection.StatusHandler(nil), s.statuses...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(status, err)
	}
}

// Events returns the names of the registered handlers.
func (s *Socket) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		names = append(names, name)
	}
	return names
}

func (s *Socket) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

func (s *Socket) Disconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnects
}
