package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vsmcore/vsmcore/internal/capability"
	"github.com/vsmcore/vsmcore/internal/daemon"
)

func init() {
	capabilityCmd.Flags().StringVar(&capabilityKind, "kind", "", "Filter by kind: operational, intelligence, policy")
	capabilityCmd.Flags().StringVar(&capabilitySource, "source", "", "Filter by source: local, external, adapted")
	rootCmd.AddCommand(capabilityCmd)
}

var (
	capabilityKind   string
	capabilitySource string
)

var capabilityCmd = &cobra.Command{
	Use:     "capability",
	Aliases: []string{"capabilities"},
	Short:   "List registered capabilities",
	RunE:    runCapability,
}

func runCapability(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	caps := d.Registry.ListCapabilities(capability.Filters{
		Kind:   capability.Kind(capabilityKind),
		Source: capabilitySource,
	})
	if len(caps) == 0 {
		fmt.Println("No capabilities registered.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tSOURCE\tSERVER")
	for _, c := range caps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Name, c.Kind, c.Source.Type, c.Source.Server)
	}
	return w.Flush()
}
