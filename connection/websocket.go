package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/huykn/live-sync/logging"
	"github.com/huykn/live-sync/types"
)

// WebSocketOptions configures the gorilla/websocket transport.
type WebSocketOptions struct {
	// HandshakeTimeout bounds dialing plus the auth exchange.
	HandshakeTimeout time.Duration
	// PingInterval between keepalive pings. Zero disables pings.
	PingInterval time.Duration
	// PongTimeout is how long the connection may stay silent before it is
	// considered dead. Must exceed PingInterval.
	PongTimeout time.Duration
	// MaxMessageSize limits inbound frames.
	MaxMessageSize int64

	// ReconnectBaseDelay is the first retry delay; it doubles per attempt.
	ReconnectBaseDelay time.Duration
	// ReconnectMaxDelay caps the retry delay.
	ReconnectMaxDelay time.Duration
	// MaxReconnectAttempts stops retrying after this many consecutive
	// failures. Zero retries forever.
	MaxReconnectAttempts int

	Logger    logging.Logger
	DebugMode bool

	// Dialer defaults to a websocket.Dialer with HandshakeTimeout.
	Dialer *websocket.Dialer
}

// DefaultWebSocketOptions returns the transport defaults.
func DefaultWebSocketOptions() WebSocketOptions {
	return WebSocketOptions{
		HandshakeTimeout:   10 * time.Second,
		PingInterval:       25 * time.Second,
		PongTimeout:        60 * time.Second,
		MaxMessageSize:     1 << 20,
		ReconnectBaseDelay: time.Second,
		ReconnectMaxDelay:  30 * time.Second,
	}
}

// WebSocketTransport opens sockets that speak {"event","data"} JSON frames
// and authenticate with an auth frame right after the upgrade.
type WebSocketTransport struct {
	opts WebSocketOptions
}

// NewWebSocketTransport creates a transport. Zero durations take defaults.
func NewWebSocketTransport(opts WebSocketOptions) *WebSocketTransport {
	def := DefaultWebSocketOptions()
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = def.HandshakeTimeout
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = def.PongTimeout
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = def.MaxMessageSize
	}
	if opts.ReconnectBaseDelay <= 0 {
		opts.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if opts.ReconnectMaxDelay <= 0 {
		opts.ReconnectMaxDelay = def.ReconnectMaxDelay
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout}
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &WebSocketTransport{opts: opts}
}

// Open creates a socket for token. It does not dial until Connect.
func (t *WebSocketTransport) Open(url, token string) Socket {
	return &wsSocket{
		id:       uuid.NewString(),
		url:      url,
		token:    token,
		opts:     t.opts,
		logger:   t.opts.Logger,
		handlers: make(map[string]Handler),
	}
}

type wsSocket struct {
	id     string
	url    string
	token  string
	opts   WebSocketOptions
	logger logging.Logger

	// mu is read-held while an event handler runs, so Disconnect returns
	// only after the running handler does.
	mu       sync.RWMutex
	handlers map[string]Handler
	statuses []StatusHandler
	conn     *websocket.Conn
	started  bool
	closed   bool
	cancel   context.CancelFunc
}

func (s *wsSocket) ID() string { return s.id }

func (s *wsSocket) On(event string, h Handler) {
	s.mu.Lock()
	s.handlers[event] = h
	s.mu.Unlock()
}

func (s *wsSocket) OnStatus(h StatusHandler) {
	s.mu.Lock()
	s.statuses = append(s.statuses, h)
	s.mu.Unlock()
}

func (s *wsSocket) Connect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(ctx)
}

func (s *wsSocket) Disconnect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	}
}

// run connects, serves and reconnects until the socket is disconnected or
// the retry budget is spent.
func (s *wsSocket) run(ctx context.Context) {
	attempt := 0
	for {
		s.emitStatus(StatusConnecting, nil)

		conn, err := s.dial(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.emitStatus(StatusConnectError, err)
		} else {
			attempt = 0
			s.emitStatus(StatusConnected, nil)
			err = s.serve(ctx, conn)
			if ctx.Err() != nil {
				return
			}
			s.emitStatus(StatusDisconnected, err)
		}

		if s.opts.MaxReconnectAttempts > 0 && attempt >= s.opts.MaxReconnectAttempts {
			s.logger.Error("Giving up reconnecting", "socket", s.id, "attempts", attempt)
			return
		}
		delay := backoff(s.opts.ReconnectBaseDelay, s.opts.ReconnectMaxDelay, attempt)
		attempt++
		if s.opts.DebugMode {
			s.logger.Debug("Reconnecting", "socket", s.id, "attempt", attempt, "delay", delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// dial opens the connection and runs the auth exchange.
func (s *wsSocket) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, s.opts.HandshakeTimeout)
	defer cancel()

	conn, _, err := s.opts.Dialer.DialContext(dialCtx, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return nil, ctx.Err()
	}
	s.conn = conn
	s.mu.Unlock()

	if err := s.authenticate(conn); err != nil {
		s.dropConn(conn)
		return nil, err
	}
	return conn, nil
}

func (s *wsSocket) authenticate(conn *websocket.Conn) error {
	deadline := time.Now().Add(s.opts.HandshakeTimeout)

	auth, err := types.NewFrame(types.EventAuth, types.AuthPayload{Token: s.token})
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := conn.WriteJSON(auth); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	if err := conn.SetReadDeadline(deadline); err != nil {
		return err
	}
	var reply types.Frame
	if err := conn.ReadJSON(&reply); err != nil {
		return fmt.Errorf("await auth reply: %w", err)
	}

	switch reply.Event {
	case types.EventAuthenticated:
		_ = conn.SetWriteDeadline(time.Time{})
		return conn.SetReadDeadline(time.Time{})
	case types.EventConnectError:
		var payload types.ErrorPayload
		_ = json.Unmarshal(reply.Data, &payload)
		return fmt.Errorf("%w: %s", ErrHandshakeRejected, payload.Message)
	default:
		return fmt.Errorf("%w: unexpected %q frame", ErrHandshakeFailed, reply.Event)
	}
}

// serve reads frames until the connection fails or ctx is done.
func (s *wsSocket) serve(ctx context.Context, conn *websocket.Conn) error {
	defer s.dropConn(conn)

	conn.SetReadLimit(s.opts.MaxMessageSize)
	if s.opts.PingInterval > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout)); err != nil {
			return err
		}
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
		})

		pingCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go s.ping(pingCtx, conn)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var frame types.Frame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
			if s.opts.DebugMode {
				s.logger.Debug("Dropping malformed frame", "socket", s.id, "error", err)
			}
			continue
		}
		s.dispatch(frame)
	}
}

func (s *wsSocket) ping(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.opts.PingInterval)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				if s.opts.DebugMode {
					s.logger.Debug("Ping failed", "socket", s.id, "error", err)
				}
				return
			}
		}
	}
}

func (s *wsSocket) dispatch(frame types.Frame) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	if h, ok := s.handlers[frame.Event]; ok {
		h(frame.Data)
	}
}

func (s *wsSocket) emitStatus(status Status, err error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return
	}
	fns := append([]StatusHandler(nil), s.statuses...)
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(status, err)
	}
}

func (s *wsSocket) dropConn(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	conn.Close()
}

// backoff returns base*2^attempt plus up to 50% of base as jitter, capped
// at maxDelay.
func backoff(base, maxDelay time.Duration, attempt int) time.Duration {
	jitter := rand.Float64() * float64(base) * 0.5
	delay := float64(base)*math.Pow(2, float64(attempt)) + jitter
	return time.Duration(math.Min(delay, float64(maxDelay)))
}
