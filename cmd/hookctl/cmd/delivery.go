package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hooklinehq/hookline/internal/engine"
)

// deliveryCmd represents the delivery command
var deliveryCmd = &cobra.Command{
	Use:   "delivery",
	Short: "Manage webhook deliveries",
	Long:  `Submit deliveries and check delivery status and attempt history.`,
}

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status [delivery-id]",
	Short: "Get status and attempt history for a delivery",
	Long: `Get the lifecycle status and attempts for a specific delivery.

Example:
  hookctl delivery status del_123`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deliveryID := args[0]

		var d engine.Delivery
		if err := doJSON("GET", "/v1/deliveries/"+deliveryID, nil, &d); err != nil {
			return fmt.Errorf("failed to get delivery: %w", err)
		}

		if outputJSON {
			printOutput(d)
			return nil
		}

		fmt.Printf("Delivery %s:\n", d.ID)
		fmt.Printf("  Status: %s\n", d.Status)
		fmt.Printf("  URL: %s\n", d.Payload.URL)
		fmt.Printf("  Event: %s (%s)\n", d.Payload.EventType, d.Payload.EventID)
		fmt.Printf("  Created: %s\n", formatTime(d.CreatedAt))
		if d.DeliveredAt != nil {
			fmt.Printf("  Delivered: %s\n", formatTime(*d.DeliveredAt))
		}
		if d.FailedAt != nil {
			fmt.Printf("  Failed: %s\n", formatTime(*d.FailedAt))
		}
		if d.DLQAt != nil {
			fmt.Printf("  Dead Lettered: %s (%s)\n", formatTime(*d.DLQAt), d.DLQReason)
		}

		if len(d.Attempts) == 0 {
			fmt.Println("  No delivery attempts found")
			return nil
		}
		for _, attempt := range d.Attempts {
			fmt.Printf("\n  Attempt %d:\n", attempt.Number)
			fmt.Printf("    Status: %s\n", attempt.Status)
			if attempt.HTTPStatus > 0 {
				fmt.Printf("    HTTP Status: %d\n", attempt.HTTPStatus)
			}
			if attempt.Error != "" {
				fmt.Printf("    Error: %s\n", attempt.Error)
			}
			if attempt.LatencyMS > 0 {
				fmt.Printf("    Latency: %dms\n", attempt.LatencyMS)
			}
			fmt.Printf("    At: %s\n", formatTime(attempt.At))
			if attempt.NextRetryAt != nil {
				fmt.Printf("    Next retry: %s\n", formatTime(*attempt.NextRetryAt))
			}
		}

		return nil
	},
}

// submitCmd represents the submit command
var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a webhook delivery",
	Long: `Submit a payload for delivery. The first attempt runs immediately;
failures are retried in the background.

Example:
  hookctl delivery submit --url http://receiver:8081/hook --event order.created --org acme --data '{"order_id": 42}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		eventType, _ := cmd.Flags().GetString("event")
		orgID, _ := cmd.Flags().GetString("org")
		dataStr, _ := cmd.Flags().GetString("data")
		webhookID, _ := cmd.Flags().GetString("webhook-id")

		var body map[string]interface{}
		if dataStr != "" {
			if err := json.Unmarshal([]byte(dataStr), &body); err != nil {
				return fmt.Errorf("invalid --data JSON: %w", err)
			}
		}

		payload := engine.Payload{
			WebhookID: webhookID,
			OrgID:     orgID,
			URL:       url,
			EventType: eventType,
			Body:      body,
		}

		var d engine.Delivery
		if err := doJSON("POST", "/v1/deliveries", payload, &d); err != nil {
			return fmt.Errorf("failed to submit delivery: %w", err)
		}

		if outputJSON {
			printOutput(d)
			return nil
		}

		fmt.Printf("Submitted delivery: %s\n", d.ID)
		fmt.Printf("  Status: %s\n", d.Status)
		fmt.Printf("  Attempts: %d\n", len(d.Attempts))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deliveryCmd)
	deliveryCmd.AddCommand(statusCmd)
	deliveryCmd.AddCommand(submitCmd)

	// Flags for submit command
	submitCmd.Flags().String("url", "", "destination URL (required)")
	submitCmd.Flags().String("event", "", "event type (required)")
	submitCmd.Flags().String("org", "", "organization ID")
	submitCmd.Flags().String("data", "", "event body as a JSON object")
	submitCmd.Flags().String("webhook-id", "", "webhook configuration ID")
	submitCmd.MarkFlagRequired("url")
	submitCmd.MarkFlagRequired("event")
}
