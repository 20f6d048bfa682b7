package main

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/huykn/live-sync/fanout"
	"github.com/huykn/live-sync/logging"
	"github.com/huykn/live-sync/storage"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Channel       string
	Format        string // "json" | "msgpack"
	Secret        string
	Issuer        string
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "livesync-fanout",
		Short: "Realtime fanout hub for live-sync clients",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := storage.GetSerializer(opts.Format); err != nil {
				return fmt.Errorf("invalid format %q: must be json or msgpack", opts.Format)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.RedisAddr, "redis-addr", "localhost:6379", "redis address")
	cmd.PersistentFlags().StringVar(&opts.RedisPassword, "redis-password", "", "redis password")
	cmd.PersistentFlags().IntVar(&opts.RedisDB, "redis-db", 0, "redis database")
	cmd.PersistentFlags().StringVar(&opts.Channel, "channel", fanout.DefaultChannel, "pub/sub channel for deliveries")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "json", "bus encoding (json|msgpack)")
	cmd.PersistentFlags().StringVar(&opts.Secret, "secret", "", "HS256 secret for handshake tokens (or LIVESYNC_JWT_SECRET)")
	cmd.PersistentFlags().StringVar(&opts.Issuer, "issuer", "", "expected token issuer")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewPublishCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

func (o *RootOptions) redisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     o.RedisAddr,
		Password: o.RedisPassword,
		DB:       o.RedisDB,
	})
}

func (o *RootOptions) bus(client *redis.Client, nodeID string, logger logging.Logger) (*fanout.RedisBus, error) {
	serializer, err := storage.GetSerializer(o.Format)
	if err != nil {
		return nil, err
	}
	return fanout.NewRedisBus(client, o.Channel, nodeID, serializer, logger), nil
}

func (o *RootOptions) authenticator() (*fanout.JWTAuthenticator, error) {
	secret := o.Secret
	if secret == "" {
		secret = getenv("LIVESYNC_JWT_SECRET")
	}
	if secret == "" {
		return nil, errors.New("a token secret is required (--secret or LIVESYNC_JWT_SECRET)")
	}
	return fanout.NewJWTAuthenticator([]byte(secret), o.Issuer), nil
}

func (o *RootOptions) zapLogger() (*zap.Logger, error) {
	if o.Verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
