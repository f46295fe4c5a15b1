package cmd

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/hooklinehq/hookline/internal/engine"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show delivery statistics",
	Long: `Show aggregate delivery statistics: totals, latency percentiles,
success and retry rates.

Example:
  hookctl stats --org acme`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/v1/stats"
		if org, _ := cmd.Flags().GetString("org"); org != "" {
			path += "?org=" + url.QueryEscape(org)
		}

		var m engine.Metrics
		if err := doJSON("GET", path, nil, &m); err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		if outputJSON {
			printOutput(m)
			return nil
		}

		fmt.Println("Delivery statistics:")
		fmt.Printf("  Total deliveries: %d\n", m.TotalDeliveries)
		fmt.Printf("  Successful: %d\n", m.SuccessfulDeliveries)
		fmt.Printf("  Failed: %d\n", m.FailedDeliveries)
		fmt.Printf("  DLQ size: %d\n", m.DLQSize)
		fmt.Printf("  Avg latency: %.1fms\n", m.AvgLatencyMS)
		fmt.Printf("  p95 latency: %dms\n", m.P95LatencyMS)
		fmt.Printf("  p99 latency: %dms\n", m.P99LatencyMS)
		fmt.Printf("  Success rate: %.1f%%\n", m.SuccessRate*100)
		fmt.Printf("  Retry rate: %.1f%%\n", m.RetryRate*100)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().String("org", "", "restrict stats to one organization")
}
