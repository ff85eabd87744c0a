package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vsmcore/vsmcore/internal/daemon"
	"github.com/vsmcore/vsmcore/internal/domain"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tiered store stats and subsystem runtime state",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	stats, err := d.Store.Stats()
	if err != nil {
		return fmt.Errorf("store stats: %w", err)
	}
	total := int64(stats.HotCount + stats.WarmCount + stats.ColdCount)
	fmt.Printf("store:\n  hot=%d warm=%d cold=%d (%s entries total)\n",
		stats.HotCount, stats.WarmCount, stats.ColdCount, domain.HumanCount(total))

	fmt.Printf("runtime:\n")
	fmt.Printf("  s1: %+v\n", d.Runtime.S1.Metrics())
	fmt.Printf("  s2: %d active coordinations\n", len(d.Runtime.S2.ActiveCoordinations()))
	fmt.Printf("  s3: %d allocations\n", len(d.Runtime.S3.Allocations()))
	fmt.Printf("  s4: scanning every %s\n", d.Runtime.S4.ScanningInterval())
	fmt.Printf("  s5: %d decisions\n", len(d.Runtime.S5.Decisions()))

	return nil
}
