package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a webhook signature",
	Long: `Check a signature header against a request body and secret, using the
engine's signing scheme.

Example:
  hookctl verify --signature "t=1700000000,v1=ab12..." --body '{"order_id":42}' --secret whsec_test`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sig, _ := cmd.Flags().GetString("signature")
		body, _ := cmd.Flags().GetString("body")
		secret, _ := cmd.Flags().GetString("secret")

		req := map[string]string{
			"signature": sig,
			"body":      body,
			"secret":    secret,
		}

		var res struct {
			Valid bool `json:"valid"`
		}
		if err := doJSON("POST", "/v1/signature/verify", req, &res); err != nil {
			return fmt.Errorf("verification request failed: %w", err)
		}

		if outputJSON {
			printOutput(res)
			return nil
		}
		if res.Valid {
			fmt.Println("✓ Signature is valid")
		} else {
			fmt.Println("✗ Signature is invalid")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().String("signature", "", "signature header value (required)")
	verifyCmd.Flags().String("body", "", "raw request body (required)")
	verifyCmd.Flags().String("secret", "", "endpoint secret (required)")
	verifyCmd.MarkFlagRequired("signature")
	verifyCmd.MarkFlagRequired("body")
	verifyCmd.MarkFlagRequired("secret")
}
