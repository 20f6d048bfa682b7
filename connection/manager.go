package connection

import (
	"context"
	"sync"

	"github.com/huykn/live-sync/credential"
	"github.com/huykn/live-sync/logging"
	"github.com/huykn/live-sync/metrics"
	"github.com/huykn/live-sync/types"
)

// Binder attaches event handlers to the current socket. Unbind must not
// return while a handler of the previous socket is still running, so a
// handler must not call Manager.SetCredential or Close on its own
// goroutine; doing so deadlocks.
type Binder interface {
	Bind(s Socket)
	Unbind()
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// URL is the realtime endpoint passed to the transport.
	URL string
	// Logger for diagnostics. Defaults to a no-op logger.
	Logger logging.Logger
	// DebugMode enables verbose logging.
	DebugMode bool
	// Metrics defaults to no-op metrics.
	Metrics metrics.ClientMetrics
}

// Manager owns the single realtime socket of the process and keeps it keyed
// to the current credential.
type Manager struct {
	transport Transport
	binder    Binder
	opts      ManagerOptions
	logger    logging.Logger
	metrics   metrics.ClientMetrics

	// mu serializes credential changes.
	mu     sync.Mutex
	token  string
	socket Socket
	closed bool

	stateMu   sync.RWMutex
	state     types.State
	currentID string

	listenersMu sync.RWMutex
	listeners   map[int]func(types.State)
	nextID      int
}

// NewManager creates a Manager with no credential.
func NewManager(transport Transport, opts ManagerOptions, binder Binder) *Manager {
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.Metrics == nil {
		opts.Metrics = metrics.NoOpClientMetrics{}
	}
	return &Manager{
		transport: transport,
		binder:    binder,
		opts:      opts,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		state:     types.StateNoCredential,
		listeners: make(map[int]func(types.State)),
	}
}

// SetCredential applies token ("" = absent). It returns once the previous
// socket, if any, is disconnected and the new one, if any, is connecting.
// Applying the current token again is a no-op.
func (m *Manager) SetCredential(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || (token == m.token && (token == "") == (m.socket == nil)) {
		return
	}

	m.teardownLocked()
	m.token = token

	if token == "" {
		m.adopt("", types.StateNoCredential)
		return
	}

	s := m.transport.Open(m.opts.URL, token)
	m.socket = s
	m.adopt(s.ID(), types.StateConnecting)

	s.OnStatus(func(status Status, err error) {
		m.handleStatus(s.ID(), status, err)
	})
	m.binder.Bind(s)
	m.metrics.ConnectionOpened()

	if m.opts.DebugMode {
		m.logger.Debug("Opening realtime socket", "socket", s.ID(), "url", m.opts.URL)
	}
	s.Connect()
}

// Run applies the store's credential and follows its changes until ctx is
// done, then closes the socket.
func (m *Manager) Run(ctx context.Context, store credential.Store) error {
	changed := make(chan struct{}, 1)
	cancel := store.Watch(func(string, bool) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer cancel()

	for {
		token, _ := store.Token()
		m.SetCredential(token)

		select {
		case <-ctx.Done():
			m.SetCredential("")
			return ctx.Err()
		case <-changed:
		}
	}
}

// State returns the current connection state.
func (m *Manager) State() types.State {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

// Token returns the credential the current socket was opened with.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// OnStateChange registers fn for state transitions. The returned function
// unregisters it.
func (m *Manager) OnStateChange(fn func(types.State)) func() {
	m.listenersMu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.listenersMu.Unlock()

	return func() {
		m.listenersMu.Lock()
		delete(m.listeners, id)
		m.listenersMu.Unlock()
	}
}

// Close disconnects the socket. Later credential changes are ignored.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.teardownLocked()
	m.token = ""
	m.adopt("", types.StateNoCredential)
	return nil
}

// teardownLocked detaches the binder before disconnecting so that no event
// of the old socket reaches the router afterwards.
func (m *Manager) teardownLocked() {
	if m.socket == nil {
		return
	}
	old := m.socket
	m.socket = nil

	m.stateMu.Lock()
	m.currentID = ""
	m.stateMu.Unlock()

	m.binder.Unbind()
	old.Disconnect()

	if m.opts.DebugMode {
		m.logger.Debug("Closed realtime socket", "socket", old.ID())
	}
}

func (m *Manager) handleStatus(socketID string, status Status, err error) {
	switch status {
	case StatusConnected:
		m.logger.Info("Realtime connected", "socket", socketID)
	case StatusDisconnected:
		m.logger.Info("Realtime disconnected", "socket", socketID, "error", err)
	case StatusConnectError:
		m.logger.Warn("Realtime connect error", "socket", socketID, "error", err)
	}

	var next types.State
	switch status {
	case StatusConnecting:
		next = types.StateConnecting
	case StatusConnected:
		next = types.StateConnected
	case StatusDisconnected:
		next = types.StateDisconnected
	case StatusConnectError:
		next = types.StateError
	default:
		return
	}

	if !m.transition(socketID, next) && m.opts.DebugMode {
		m.logger.Debug("Ignoring status of replaced socket", "socket", socketID, "status", string(status))
	}
}

// adopt makes socketID ("" = none) current and moves to next.
func (m *Manager) adopt(socketID string, next types.State) {
	m.stateMu.Lock()
	m.currentID = socketID
	prev := m.state
	m.state = next
	m.stateMu.Unlock()

	m.notify(prev, next)
}

// transition moves to next only while socketID is current.
func (m *Manager) transition(socketID string, next types.State) bool {
	m.stateMu.Lock()
	if socketID == "" || socketID != m.currentID {
		m.stateMu.Unlock()
		return false
	}
	prev := m.state
	m.state = next
	m.stateMu.Unlock()

	m.notify(prev, next)
	return true
}

func (m *Manager) notify(prev, next types.State) {
	if prev == next {
		return
	}
	m.metrics.StateChanged(string(next))
	if m.opts.DebugMode {
		m.logger.Debug("Connection state changed", "from", string(prev), "to", string(next))
	}

	m.listenersMu.RLock()
	fns := make([]func(types.State), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.listenersMu.RUnlock()

	for _, fn := range fns {
		fn(next)
	}
}
