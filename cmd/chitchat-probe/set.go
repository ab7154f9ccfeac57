package main

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/chitchatlabs/chitchat/internal/statusapi"
)

func newSetCommand() *cobra.Command {
	var serverURL string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Args:  cobra.ExactArgs(2),
		Short: "set a key on the node's own local state",
		Long: `Set a key on the node's own local state.

A node can only author its own key-values in Scuttlebutt gossip, so this
always acts on the node addressed by --server.url, never a remote peer.

Examples:
  chitchat-probe set region us-east --server.url http://localhost:7281
  chitchat-probe set session abc123 --ttl 5m
`,
	}

	cmd.Flags().StringVar(&serverURL, "server.url", "http://localhost:7281", "chitchatd status API URL.")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Expire this key after the given duration. Zero means never.")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		u, err := url.Parse(serverURL)
		if err != nil {
			return fmt.Errorf("invalid server url: %w", err)
		}

		client := statusapi.NewClient(u)
		defer client.Close()

		if err := client.SetLocalKey(context.Background(), args[0], args[1], ttl); err != nil {
			return fmt.Errorf("set key: %w", err)
		}
		return nil
	}

	return cmd
}
