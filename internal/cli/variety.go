package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vsmcore/vsmcore/internal/daemon"
	"github.com/vsmcore/vsmcore/internal/domain"
)

func init() {
	rootCmd.AddCommand(varietyCmd)
}

var varietyCmd = &cobra.Command{
	Use:   "variety",
	Short: "Show the variety/gap controller's recent metrics and autonomous actions",
	RunE:  runVariety,
}

func runVariety(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	metrics := d.Variety.Metrics()
	if len(metrics) == 0 {
		fmt.Println("No variety measurements taken yet; the controller only samples while serving.")
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "AT\tOPERATIONAL\tENVIRONMENTAL\tGAP RATIO\tENTROPY")
		for _, m := range metrics {
			fmt.Fprintf(w, "%s\t%.1f\t%.1f\t%.2f\t%.2f\n",
				m.At.Format("15:04:05"), m.Operational, m.Environmental, m.GapRatio, m.Entropy)
		}
		w.Flush()
	}

	actions := d.Variety.ActionLog()
	if len(actions) == 0 {
		return nil
	}
	fmt.Printf("\nactions (%s total):\n", domain.HumanCount(int64(len(actions))))
	for _, a := range actions {
		fmt.Printf("  [%s] %s — %s\n", a.At.Format("15:04:05"), a.Kind, a.Rationale)
	}
	return nil
}
