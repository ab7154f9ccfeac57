package main

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/chitchatlabs/chitchat/internal/statusapi"
)

func newDigestCommand() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "dump the node's live per-peer digest",
		Long: `Dump the node's live per-peer digest.

The digest is the compact summary a node gossips first: heartbeat, max
version and last GC version per peer, without any key-value payload.

Examples:
  chitchat-probe digest --server.url http://localhost:7281
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

		entries, err := client.Digest(context.Background())
		if err != nil {
			return fmt.Errorf("fetch digest: %w", err)
		}

		return yaml.NewEncoder(os.Stdout).Encode(entries)
	}

	return cmd
}
