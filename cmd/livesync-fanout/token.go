package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var getenv = os.Getenv

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	*RootOptions
	TTL time.Duration
}

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a handshake token for development",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := opts.authenticator()
			if err != nil {
				return err
			}
			token, err := auth.Issue(args[0], opts.TTL)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&opts.TTL, "ttl", 24*time.Hour, "token lifetime")

	return cmd
}
