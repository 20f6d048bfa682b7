package main

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/huykn/live-sync/rules"
	"github.com/huykn/live-sync/types"
)

// PublishOptions holds flags for the publish command.
type PublishOptions struct {
	*RootOptions
	UserID string
	Data   string
	Force  bool
}

// NewPublishCommand creates the publish command.
func NewPublishCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PublishOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "publish <event>",
		Short: "Publish an event to every socket of a user",
		Long: `Publish an event to every socket of a user through the Redis channel.

Example:
  livesync-fanout publish message --user u1 --data '{"chat":{"documentId":"c1"}}'
  livesync-fanout publish notification --user u1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "user", "", "target user id (required)")
	cmd.Flags().StringVar(&opts.Data, "data", "", "event data as JSON")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "allow event names outside the catalog")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runPublish(cmd *cobra.Command, opts *PublishOptions, event string) error {
	if !opts.Force && !slices.Contains(rules.Default().Names(), event) {
		return fmt.Errorf("unknown event %q: must be one of %v (or use --force)", event, rules.Default().Names())
	}

	frame := types.Frame{Event: event}
	if opts.Data != "" {
		if !json.Valid([]byte(opts.Data)) {
			return fmt.Errorf("--data is not valid JSON")
		}
		frame.Data = json.RawMessage(opts.Data)
	}

	client := opts.redisClient()
	defer client.Close()

	bus, err := opts.bus(client, "cli", nil)
	if err != nil {
		return err
	}
	if err := bus.Publish(cmd.Context(), types.Delivery{UserID: opts.UserID, Frame: frame}); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "published %s to %s\n", event, opts.UserID)
	return nil
}
