package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/identity-guardian/guardian/pkg/output"
)

var riskCmd = &cobra.Command{
	Use:   "risk",
	Short: "Risk assessment operations",
	Long:  "Run and inspect risk assessments for subjects",
}

var riskAssessCmd = &cobra.Command{
	Use:   "assess [subject-id]",
	Short: "Run a risk assessment",
	Long:  "Correlate the subject's signal log and compute a fresh composite score",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := apiClient(cmd).Dispatch("calculate_risk", map[string]interface{}{
			"subject_id": args[0],
		})
		if err != nil {
			return fmt.Errorf("failed to assess: %w", err)
		}

		outputFormat, _ := cmd.Flags().GetString("output")
		if outputFormat == "json" {
			return output.JSON(res)
		}
		if outputFormat == "yaml" {
			return output.YAML(res)
		}

		if res.Status != "ok" {
			output.Error("Assessment %s: %s", res.Status, res.Error)
			return nil
		}
		output.Success("Assessment complete for %s", args[0])
		return output.JSON(res.Data)
	},
}

var riskShowCmd = &cobra.Command{
	Use:   "show [subject-id]",
	Short: "Show the latest assessment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := apiClient(cmd).LatestAssessment(args[0])
		if err != nil {
			return fmt.Errorf("failed to get assessment: %w", err)
		}

		outputFormat, _ := cmd.Flags().GetString("output")
		if outputFormat == "json" {
			return output.JSON(a)
		}
		if outputFormat == "yaml" {
			return output.YAML(a)
		}

		output.Info("Subject: %s", a.SubjectID)
		output.Info("Score: %.1f (%s)", a.Score, a.Level)
		output.Info("Assessed: %s", a.AssessedAt.Format("2006-01-02 15:04:05"))

		if len(a.Factors) > 0 {
			output.Info("\nContributing factors:")
			table := output.NewTable("Factor", "Weight", "Points")
			for _, f := range a.Factors {
				table.AddRow(
					f.Factor,
					fmt.Sprintf("%.2f", f.Weight),
					fmt.Sprintf("%.1f", f.Points),
				)
			}
			table.Render()
		}
		return nil
	},
}

var riskSignalsCmd = &cobra.Command{
	Use:   "signals [subject-id]",
	Short: "List a subject's signal log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sigs, err := apiClient(cmd).ListSignals(args[0])
		if err != nil {
			return fmt.Errorf("failed to list signals: %w", err)
		}

		outputFormat, _ := cmd.Flags().GetString("output")
		if outputFormat == "json" {
			return output.JSON(sigs)
		}
		if outputFormat == "yaml" {
			return output.YAML(sigs)
		}

		if len(sigs) == 0 {
			output.Info("No signals found")
			return nil
		}

		table := output.NewTable("Kind", "Severity", "Source", "Observed At")
		for _, s := range sigs {
			table.AddRow(
				string(s.Kind),
				fmt.Sprintf("%.2f", s.Severity),
				s.Source,
				s.ObservedAt.Format("2006-01-02 15:04:05"),
			)
		}
		table.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(riskCmd)
	riskCmd.AddCommand(riskAssessCmd)
	riskCmd.AddCommand(riskShowCmd)
	riskCmd.AddCommand(riskSignalsCmd)
}
