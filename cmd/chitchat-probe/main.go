// Command chitchat-probe queries a running chitchatd node's status API from
// the command line, for manual inspection during development and
// debugging.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "chitchat-probe [command] (flags)",
		Short:        "inspect a chitchat node's status API",
		SilenceUsage: true,
	}

	cmd.AddCommand(newReadyCommand())
	cmd.AddCommand(newClusterCommand())
	cmd.AddCommand(newNodeCommand())
	cmd.AddCommand(newDigestCommand())
	cmd.AddCommand(newGetCommand())
	cmd.AddCommand(newSetCommand())
	cmd.AddCommand(newDeleteCommand())

	return cmd
}
