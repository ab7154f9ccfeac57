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

func newClusterCommand() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "show the node's full cluster snapshot",
		Long: `Show the node's full cluster snapshot.

Queries the status API for every peer this node currently tracks, including
heartbeat, version and liveness state.

Examples:
  chitchat-probe cluster --server.url http://localhost:7281
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

		snapshot, err := client.Cluster(context.Background())
		if err != nil {
			return fmt.Errorf("fetch cluster snapshot: %w", err)
		}

		return yaml.NewEncoder(os.Stdout).Encode(snapshot)
	}

	return cmd
}
