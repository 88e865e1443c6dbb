package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bridgeport-dev/bridgeport/internal/portscan"
	"github.com/bridgeport-dev/bridgeport/pkg/types"
)

var (
	scanStart   int
	scanEnd     int
	scanTimeout time.Duration
	scanHighLow bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Find an available loopback port without starting the server",
	Long: `Scan the port range the same way 'serve' would and print the first
available port. Useful for scripting and for checking whether the
configured range has room.`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().IntVar(&scanStart, "range-start", types.DefaultPortRangeStart, "First port to consider")
	scanCmd.Flags().IntVar(&scanEnd, "range-end", types.DefaultPortRangeEnd, "Last port to consider")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 400*time.Millisecond, "Per-port probe timeout")
	scanCmd.Flags().BoolVar(&scanHighLow, "high-to-low", false, "Scan the range from high to low")
}

func runScan(cmd *cobra.Command, args []string) error {
	probe := portscan.NewTCPProbe(scanTimeout)
	scanner := portscan.NewScanner(probe, portscan.NewCache(portscan.DefaultCacheTTL))

	port, err := scanner.FindAvailablePort(cmd.Context(), scanStart, scanEnd, portscan.Options{
		Timeout:       scanTimeout,
		Retries:       portscan.DefaultRetries,
		FromHighToLow: scanHighLow,
	})
	if err != nil {
		return fmt.Errorf("scan %d-%d: %w", scanStart, scanEnd, err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), port)
	return nil
}
