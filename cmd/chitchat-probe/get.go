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

func newGetCommand() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "get <node-id> <key>",
		Args:  cobra.ExactArgs(2),
		Short: "read a key from a peer's tracked state",
		Long: `Read a key from a peer's tracked state, as known by the node
addressed by --server.url (not necessarily the peer itself).

Examples:
  chitchat-probe get node-2 region --server.url http://localhost:7281
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

		for _, kv := range node.KeyValues {
			if kv.Key == args[1] {
				return yaml.NewEncoder(os.Stdout).Encode(kv.Value)
			}
		}
		return fmt.Errorf("key %q not found on node %q", args[1], args[0])
	}

	return cmd
}
