package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vsmcore/vsmcore/internal/daemon"
)

func init() {
	rootCmd.AddCommand(chainCmd)
}

var chainCmd = &cobra.Command{
	Use:   "chain <execution-id>",
	Short: "Show a tool-chain execution's status, step results, and errors",
	Args:  cobra.ExactArgs(1),
	RunE:  runChain,
}

func runChain(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	exec, err := d.Chains.GetExecution(args[0])
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(exec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
