package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/huykn/live-sync/fanout"
	"github.com/huykn/live-sync/logging"
	"github.com/huykn/live-sync/metrics"
	"github.com/huykn/live-sync/types"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen         string
	Path           string
	AllowedOrigins []string
	PingInterval   time.Duration
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket hub",
		Long: `Run the websocket hub.

Clients connect to the websocket path and authenticate with an auth frame.
Deliveries published on the Redis channel by any node are written to every
socket of the addressed user. Prometheus metrics are served on /metrics.

Example:
  livesync-fanout serve --listen :8080 --secret dev-secret`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", ":8080", "listen address")
	cmd.Flags().StringVar(&opts.Path, "path", "/realtime", "websocket path")
	cmd.Flags().StringSliceVar(&opts.AllowedOrigins, "allowed-origin", nil, "allowed browser origins (default same-origin)")
	cmd.Flags().DurationVar(&opts.PingInterval, "ping-interval", fanout.DefaultHubConfig().PingInterval, "keepalive ping interval")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	auth, err := opts.authenticator()
	if err != nil {
		return err
	}

	zl, err := opts.zapLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()
	logger := logging.NewZapLogger(zl)

	client := opts.redisClient()
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to redis %s: %w", opts.RedisAddr, err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	cfg := fanout.DefaultHubConfig()
	cfg.AllowedOrigins = opts.AllowedOrigins
	cfg.PingInterval = opts.PingInterval
	if cfg.PongTimeout <= cfg.PingInterval {
		cfg.PongTimeout = 2 * cfg.PingInterval
	}
	hub := fanout.NewHub(cfg, auth, logger, metrics.NewServerMetrics(reg))

	nodeID := uuid.NewString()
	bus, err := opts.bus(client, nodeID, logger)
	if err != nil {
		return err
	}
	bus.OnDelivery(func(d types.Delivery) {
		n := hub.Deliver(d)
		if opts.Verbose {
			logger.Debug("Delivered", "user", d.UserID, "event", d.Frame.Event, "sockets", n, "sender", d.Sender)
		}
	})
	if err := bus.Subscribe(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", opts.Channel, err)
	}
	defer bus.Close()

	mux := http.NewServeMux()
	mux.Handle(opts.Path, hub)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              opts.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("Fanout hub listening", zap.String("addr", opts.Listen), zap.String("path", opts.Path), zap.String("node", nodeID))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	zl.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := hub.Shutdown(shutdownCtx); err != nil {
		zl.Warn("Hub shutdown incomplete", zap.Error(err))
	}
	return srv.Shutdown(shutdownCtx)
}
