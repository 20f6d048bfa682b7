package livesync

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/huykn/live-sync/cache"
	"github.com/huykn/live-sync/connection"
	"github.com/huykn/live-sync/counters"
	"github.com/huykn/live-sync/logging"
	"github.com/huykn/live-sync/metrics"
	"github.com/huykn/live-sync/router"
	"github.com/huykn/live-sync/rules"
)

// Config configures a live-sync client.
type Config struct {
	// URL is the realtime endpoint (e.g., "wss://api.example.com/realtime").
	URL string

	// LocalCacheConfig configures the local store of the query cache.
	LocalCacheConfig LocalCacheConfig

	// LocalCachePolicy selects the built-in local store ("lfu" or "lru").
	LocalCachePolicy string

	// LocalCacheFactory overrides the built-in local store.
	LocalCacheFactory LocalCacheFactory

	// Logger is the logger for diagnostics.
	// If nil, defaults to no-op logger.
	Logger Logger

	// DebugMode enables debug logging.
	DebugMode bool

	// ContextTimeout bounds each background refetch.
	ContextTimeout time.Duration

	// EnableMetrics registers Prometheus collectors on MetricsRegisterer.
	EnableMetrics bool

	// MetricsRegisterer defaults to prometheus.DefaultRegisterer.
	MetricsRegisterer prometheus.Registerer

	// OnError is called when a background refetch fails.
	OnError func(key Key, err error)

	// HandshakeTimeout bounds dialing plus the auth exchange.
	HandshakeTimeout time.Duration

	// PingInterval between keepalive pings. Zero disables pings.
	PingInterval time.Duration

	// PongTimeout is how long the connection may stay silent.
	PongTimeout time.Duration

	// ReconnectBaseDelay is the first retry delay; it doubles per attempt.
	ReconnectBaseDelay time.Duration

	// ReconnectMaxDelay caps the retry delay.
	ReconnectMaxDelay time.Duration

	// MaxReconnectAttempts stops retrying after this many consecutive
	// failures. Zero retries forever.
	MaxReconnectAttempts int

	// Transport overrides the websocket transport.
	Transport Transport

	// Rules overrides the built-in invalidation rule table.
	Rules RuleTable
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	ws := connection.DefaultWebSocketOptions()
	return Config{
		LocalCacheConfig:     DefaultLocalCacheConfig(),
		LocalCachePolicy:     cache.PolicyLFU,
		ContextTimeout:       10 * time.Second,
		EnableMetrics:        false,
		HandshakeTimeout:     ws.HandshakeTimeout,
		PingInterval:         ws.PingInterval,
		PongTimeout:          ws.PongTimeout,
		ReconnectBaseDelay:   ws.ReconnectBaseDelay,
		ReconnectMaxDelay:    ws.ReconnectMaxDelay,
		MaxReconnectAttempts: 0,
		Logger:               nil, // Will default to no-op in New()
		Transport:            nil, // Will default to websocket in New()
		Rules:                nil, // Will default to rules.Default() in New()
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidConfig)
	}
	if c.ContextTimeout <= 0 {
		return fmt.Errorf("%w: context timeout must be positive", ErrInvalidConfig)
	}
	if c.HandshakeTimeout < 0 || c.PingInterval < 0 || c.PongTimeout < 0 {
		return fmt.Errorf("%w: negative connection timeout", ErrInvalidConfig)
	}
	if c.PingInterval > 0 && c.PongTimeout > 0 && c.PongTimeout <= c.PingInterval {
		return fmt.Errorf("%w: pong timeout must exceed ping interval", ErrInvalidConfig)
	}
	if c.ReconnectBaseDelay < 0 || c.ReconnectMaxDelay < 0 || c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("%w: negative reconnect setting", ErrInvalidConfig)
	}
	return nil
}

// New creates a client. It does not connect until a credential is applied
// with Run or SetCredential.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := logging.OrNoOp(cfg.Logger)

	var clientMetrics metrics.ClientMetrics = metrics.NoOpClientMetrics{}
	if cfg.EnableMetrics {
		reg := cfg.MetricsRegisterer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		clientMetrics = metrics.NewClientMetrics(reg)
	}

	qc, err := cache.New(cache.Options{
		LocalCacheConfig:  cfg.LocalCacheConfig,
		LocalCachePolicy:  cfg.LocalCachePolicy,
		LocalCacheFactory: cfg.LocalCacheFactory,
		Logger:            logger,
		DebugMode:         cfg.DebugMode,
		ContextTimeout:    cfg.ContextTimeout,
		OnError:           cfg.OnError,
	})
	if err != nil {
		return nil, fmt.Errorf("create query cache: %w", err)
	}

	table := cfg.Rules
	if table == nil {
		table = rules.Default()
	}

	transport := cfg.Transport
	if transport == nil {
		transport = connection.NewWebSocketTransport(connection.WebSocketOptions{
			HandshakeTimeout:     cfg.HandshakeTimeout,
			PingInterval:         cfg.PingInterval,
			PongTimeout:          cfg.PongTimeout,
			ReconnectBaseDelay:   cfg.ReconnectBaseDelay,
			ReconnectMaxDelay:    cfg.ReconnectMaxDelay,
			MaxReconnectAttempts: cfg.MaxReconnectAttempts,
			Logger:               logger,
			DebugMode:            cfg.DebugMode,
		})
	}

	r := router.New(table, qc, router.Options{
		Logger:    logger,
		DebugMode: cfg.DebugMode,
		Metrics:   clientMetrics,
	})
	manager := connection.NewManager(transport, connection.ManagerOptions{
		URL:       cfg.URL,
		Logger:    logger,
		DebugMode: cfg.DebugMode,
		Metrics:   clientMetrics,
	}, r)

	c := &Client{
		logger:   logger,
		cache:    qc,
		router:   r,
		manager:  manager,
		counters: counters.New(qc, logger),
	}
	c.cancelState = manager.OnStateChange(c.handleState)

	if cfg.DebugMode {
		logger.Debug("Client created", "url", cfg.URL, "events", table.Names(), "version", Version)
	}
	return c, nil
}
