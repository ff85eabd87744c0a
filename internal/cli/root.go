// Package cli implements the node's command-line interface using Cobra.
// Each subcommand wires a daemon.Daemon in-process and talks to its
// live components directly, the same way the HTTP status server does.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "vsmcore",
	Short: "vsmcore — a cybernetic control node",
	Long: `vsmcore runs a single viable-system node: subsystem runtime (S1-S5),
tiered store, CRDT context store, capability registry and tool-chain
engine, MCP client pool, and variety/gap controller.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
