package fanout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/huykn/live-sync/logging"
	"github.com/huykn/live-sync/metrics"
	"github.com/huykn/live-sync/types"
)

// HubConfig contains configuration for the websocket hub.
type HubConfig struct {
	// HandshakeTimeout is how long a new socket has to send its auth frame.
	HandshakeTimeout time.Duration
	// PingInterval is how often to send ping messages.
	PingInterval time.Duration
	// PongTimeout is how long to wait for a pong response.
	PongTimeout time.Duration
	// WriteTimeout is the timeout for write operations.
	WriteTimeout time.Duration
	// MaxMessageSize is the maximum inbound message size.
	MaxMessageSize int64
	// SendBuffer is the number of frames queued per socket before it is
	// considered too slow and dropped.
	SendBuffer int
	// AllowedOrigins restricts browser origins. Empty means same-origin.
	AllowedOrigins []string
}

// DefaultHubConfig returns a HubConfig with default values.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     25 * time.Second,
		PongTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		MaxMessageSize:   64 * 1024,
		SendBuffer:       64,
	}
}

// Hub is an http.Handler that upgrades realtime sockets and writes
// deliveries to every socket of the addressed user.
type Hub struct {
	config   HubConfig
	auth     Authenticator
	logger   logging.Logger
	metrics  metrics.ServerMetrics
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	clients  map[string]map[*client]struct{}
	shutdown bool
}

type client struct {
	id        string
	userID    string
	conn      *websocket.Conn
	send      chan types.Frame
	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// NewHub creates a hub. m may be nil.
func NewHub(cfg HubConfig, auth Authenticator, logger logging.Logger, m metrics.ServerMetrics) *Hub {
	if m == nil {
		m = metrics.NoOpServerMetrics{}
	}
	def := DefaultHubConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = def.PongTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	h := &Hub{
		config:  cfg,
		auth:    auth,
		logger:  logging.OrNoOp(logger),
		metrics: m,
		clients: make(map[string]map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.config.AllowedOrigins) == 0 {
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
	for _, allowed := range h.config.AllowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return false
}

// ServeHTTP handles websocket upgrade requests. The credential travels in
// the first frame, not in headers.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	if h.shutdown {
		h.mu.RUnlock()
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	h.mu.RUnlock()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade connection", "error", err)
		return
	}

	userID, err := h.handshake(conn)
	if err != nil {
		h.metrics.HandshakeFailed()
		h.logger.Info("Handshake rejected", "remote", r.RemoteAddr, "error", err)
		conn.Close()
		return
	}

	c := &client{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan types.Frame, h.config.SendBuffer),
		done:   make(chan struct{}),
	}
	h.register(c)
	defer h.unregister(c)

	h.logger.Info("Socket connected", "user", userID, "socket", c.id)

	go h.writeLoop(c)
	h.readLoop(c)
}

// handshake reads the auth frame and answers it.
func (h *Hub) handshake(conn *websocket.Conn) (string, error) {
	deadline := time.Now().Add(h.config.HandshakeTimeout)
	_ = conn.SetReadDeadline(deadline)
	_ = conn.SetWriteDeadline(deadline)

	var frame types.Frame
	if err := conn.ReadJSON(&frame); err != nil {
		return "", err
	}

	var userID string
	var err error
	if frame.Event != types.EventAuth {
		err = ErrUnauthorized
	} else {
		var auth types.AuthPayload
		if jerr := json.Unmarshal(frame.Data, &auth); jerr != nil {
			err = ErrUnauthorized
		} else {
			userID, err = h.auth.Authenticate(auth.Token)
		}
	}

	if err != nil {
		reply, _ := types.NewFrame(types.EventConnectError, types.ErrorPayload{Message: err.Error()})
		_ = conn.WriteJSON(reply)
		return "", err
	}

	reply, _ := types.NewFrame(types.EventAuthenticated, types.AuthenticatedPayload{UserID: userID})
	if err := conn.WriteJSON(reply); err != nil {
		return "", err
	}
	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Time{})
	return userID, nil
}

// readLoop discards client frames and keeps the read deadline fresh.
func (h *Hub) readLoop(c *client) {
	c.conn.SetReadLimit(h.config.MaxMessageSize)
	if h.config.PongTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
		})
	}
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.close()

	var tick <-chan time.Time
	if h.config.PingInterval > 0 {
		ticker := time.NewTicker(h.config.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
			h.metrics.FrameDelivered(frame.Event)
		case <-tick:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.config.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	h.metrics.ConnectionOpened()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if set, ok := h.clients[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()

	c.close()
	h.metrics.ConnectionClosed()
	h.logger.Info("Socket disconnected", "user", c.userID, "socket", c.id)
}

// Deliver queues d's frame on every socket of d.UserID and returns how many
// sockets it was queued on. Sockets whose queue is full are dropped.
func (h *Hub) Deliver(d types.Delivery) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	queued := 0
	for c := range h.clients[d.UserID] {
		select {
		case c.send <- d.Frame:
			queued++
		default:
			h.metrics.FrameDropped(d.Frame.Event)
			h.logger.Warn("Dropping slow socket", "user", c.userID, "socket", c.id)
			c.close()
		}
	}
	return queued
}

// ConnectionCount returns the number of authenticated sockets.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// Shutdown refuses new sockets and closes the open ones.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.shutdown = true
	var open []*client
	for _, set := range h.clients {
		for c := range set {
			open = append(open, c)
		}
	}
	h.mu.Unlock()

	for _, c := range open {
		if err := ctx.Err(); err != nil {
			return err
		}
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(time.Second),
		)
		c.close()
	}
	return nil
}
