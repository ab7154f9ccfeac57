package main

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/chitchatlabs/chitchat/internal/statusapi"
)

func newReadyCommand() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "ready",
		Short: "check whether the node reports itself ready",
		Long: `Check whether the node reports itself ready.

Exits non-zero if the node is not ready, so this can be used directly in a
shell health check.

Examples:
  chitchat-probe ready --server.url http://localhost:7281
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

		ready, err := client.Ready(context.Background())
		if err != nil {
			return fmt.Errorf("fetch readiness: %w", err)
		}

		if !ready {
			fmt.Fprintln(os.Stdout, "not ready")
			os.Exit(1)
		}
		fmt.Fprintln(os.Stdout, "ready")
		return nil
	}

	return cmd
}
