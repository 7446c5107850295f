package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/identity-guardian/guardian/pkg/output"
)

var intentCmd = &cobra.Command{
	Use:   "intent [name]",
	Short: "Dispatch a governance intent",
	Long: `Dispatch a raw intent with a JSON payload.

Examples:
  guardianctl intent detect_dormant_accounts
  guardianctl intent calculate_risk --payload '{"subject_id": "u-100"}'
  guardianctl intent access_request --payload '{"subject_id": "u-100", "resource": "finance-db"}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payloadJSON, _ := cmd.Flags().GetString("payload")
		payload := map[string]interface{}{}
		if payloadJSON != "" {
			if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
				return fmt.Errorf("invalid payload JSON: %w", err)
			}
		}

		res, err := apiClient(cmd).Dispatch(args[0], payload)
		if err != nil {
			return fmt.Errorf("failed to dispatch: %w", err)
		}

		outputFormat, _ := cmd.Flags().GetString("output")
		if outputFormat == "yaml" {
			return output.YAML(res)
		}

		switch res.Status {
		case "ok":
			output.Success("Intent %s completed", res.Intent)
		case "invalid":
			output.Warn("Intent %s rejected: %s", res.Intent, res.Error)
		case "unsupported":
			output.Error("Intent %s is not supported", res.Intent)
		default:
			output.Error("Intent %s failed: %s", res.Intent, res.Error)
		}
		if res.Data != nil {
			return output.JSON(res.Data)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(intentCmd)
	intentCmd.Flags().String("payload", "", "intent payload as JSON")
}
