package main

import (
	"context"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/chitchatlabs/chitchat/internal/statusapi"
)

func newDeleteCommand() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "delete <key>",
		Args:  cobra.ExactArgs(1),
		Short: "tombstone a key on the node's own local state",
		Long: `Tombstone a key on the node's own local state.

Examples:
  chitchat-probe delete session --server.url http://localhost:7281
`,
	}

	cmd.Flags().StringVar(&serverURL, "server.url", "http://localhost:7281", "chitchatd status API URL.")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		u, err := url.Parse(serverURL)
		if err != nil {
			return fmt.Errorf("invalid server url: %w", err)
		}

		client := statusapi.NewClient(u)
		defer client.Close()

		if err := client.DeleteLocalKey(context.Background(), args[0]); err != nil {
			return fmt.Errorf("delete key: %w", err)
		}
		return nil
	}

	return cmd
}
