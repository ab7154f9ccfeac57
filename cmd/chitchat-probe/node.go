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

func newNodeCommand() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "node <node-id>",
		Args:  cobra.ExactArgs(1),
		Short: "show a single peer's snapshot",
		Long: `Show a single peer's snapshot by node ID.

Examples:
  chitchat-probe node node-2 --server.url http://localhost:7281
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

		node, err := client.Node(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("fetch node snapshot: %w", err)
		}

		return yaml.NewEncoder(os.Stdout).Encode(node)
	}

	return cmd
}
