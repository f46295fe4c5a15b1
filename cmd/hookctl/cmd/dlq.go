package cmd

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/hooklinehq/hookline/internal/engine"
)

// dlqCmd represents the dlq command
var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and re-drive the dead letter queue",
}

// dlqListCmd represents the dlq list command
var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead letter queue entries",
	Long: `List dead letter entries, newest first, optionally filtered.

Example:
  hookctl dlq list --org acme --can-retry true`,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if v, _ := cmd.Flags().GetString("org"); v != "" {
			q.Set("org", v)
		}
		if v, _ := cmd.Flags().GetString("event-type"); v != "" {
			q.Set("event_type", v)
		}
		if cmd.Flags().Changed("can-retry") {
			v, _ := cmd.Flags().GetBool("can-retry")
			q.Set("can_retry", fmt.Sprintf("%t", v))
		}
		if v, _ := cmd.Flags().GetString("since"); v != "" {
			if _, err := parseTimestamp(v); err != nil {
				return fmt.Errorf("invalid 'since' timestamp: %w", err)
			}
			q.Set("since", v)
		}

		path := "/v1/dlq"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		var resp struct {
			Entries []engine.DeadLetterEntry `json:"entries"`
		}
		if err := doJSON("GET", path, nil, &resp); err != nil {
			return fmt.Errorf("failed to list DLQ: %w", err)
		}

		if outputJSON {
			printOutput(resp)
			return nil
		}

		fmt.Println("Dead Letter Queue entries:")
		if len(resp.Entries) == 0 {
			fmt.Println("  No entries found")
			return nil
		}
		for i, entry := range resp.Entries {
			fmt.Printf("\n  Entry %d:\n", i+1)
			fmt.Printf("    ID: %s\n", entry.ID)
			fmt.Printf("    Delivery ID: %s\n", entry.DeliveryID)
			fmt.Printf("    Event: %s\n", entry.Payload.EventType)
			fmt.Printf("    Reason: %s\n", entry.Reason)
			fmt.Printf("    Attempts: %d\n", len(entry.Attempts))
			fmt.Printf("    Can retry: %t (re-driven %d times)\n", entry.CanRetry, entry.RetryCount)
			fmt.Printf("    Dead Lettered: %s\n", formatTime(entry.At))
			fmt.Printf("    Expires: %s\n", formatTime(entry.ExpiresAt))
		}

		return nil
	},
}

// dlqRetryCmd represents the dlq retry command
var dlqRetryCmd = &cobra.Command{
	Use:   "retry [entry-id]",
	Short: "Re-drive dead letter entries",
	Long: `Re-drive a single dead letter entry by ID, or a filtered batch with --all.

Examples:
  hookctl dlq retry dlq_456
  hookctl dlq retry --all --org acme`,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")

		if !all {
			if len(args) != 1 {
				return fmt.Errorf("expected an entry ID, or --all for a batch")
			}
			var d engine.Delivery
			if err := doJSON("POST", "/v1/dlq/"+args[0]+"/retry", nil, &d); err != nil {
				return fmt.Errorf("failed to retry entry: %w", err)
			}
			if outputJSON {
				printOutput(d)
				return nil
			}
			fmt.Printf("Re-driven as delivery: %s\n", d.ID)
			fmt.Printf("  Status: %s\n", d.Status)
			return nil
		}

		req := map[string]interface{}{}
		if v, _ := cmd.Flags().GetString("org"); v != "" {
			req["org"] = v
		}
		if v, _ := cmd.Flags().GetString("event-type"); v != "" {
			req["event_type"] = v
		}
		if v, _ := cmd.Flags().GetString("since"); v != "" {
			t, err := parseTimestamp(v)
			if err != nil {
				return fmt.Errorf("invalid 'since' timestamp: %w", err)
			}
			req["since"] = t.Format(time.RFC3339)
		}

		var res engine.BulkRetryResult
		if err := doJSON("POST", "/v1/dlq/retry", req, &res); err != nil {
			return fmt.Errorf("failed to bulk retry: %w", err)
		}

		if outputJSON {
			printOutput(res)
			return nil
		}
		fmt.Printf("Re-driven: %d succeeded, %d failed\n", res.Successful, res.Failed)
		return nil
	},
}

// dlqPurgeCmd represents the dlq purge command
var dlqPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Purge expired dead letter entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		var res struct {
			Purged int `json:"purged"`
		}
		if err := doJSON("POST", "/v1/dlq/purge", map[string]interface{}{}, &res); err != nil {
			return fmt.Errorf("failed to purge DLQ: %w", err)
		}

		if outputJSON {
			printOutput(res)
			return nil
		}
		fmt.Printf("Purged %d expired entries\n", res.Purged)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dlqCmd)
	dlqCmd.AddCommand(dlqListCmd)
	dlqCmd.AddCommand(dlqRetryCmd)
	dlqCmd.AddCommand(dlqPurgeCmd)

	// Flags for list command
	dlqListCmd.Flags().String("org", "", "filter by organization ID")
	dlqListCmd.Flags().String("event-type", "", "filter by event type")
	dlqListCmd.Flags().Bool("can-retry", false, "filter by re-drive eligibility")
	dlqListCmd.Flags().String("since", "", "only entries dead-lettered after this time (RFC3339)")

	// Flags for retry command
	dlqRetryCmd.Flags().Bool("all", false, "re-drive all matching entries")
	dlqRetryCmd.Flags().String("org", "", "filter by organization ID")
	dlqRetryCmd.Flags().String("event-type", "", "filter by event type")
	dlqRetryCmd.Flags().String("since", "", "only entries dead-lettered after this time (RFC3339)")
}
