package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/identity-guardian/guardian/pkg/output"
)

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "Remediation case management",
	Long:  "View remediation cases and restore blocked identities",
}

var casesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List remediation cases",
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")
		limit, _ := cmd.Flags().GetInt("limit")
		subjectID, _ := cmd.Flags().GetString("subject")
		state, _ := cmd.Flags().GetString("state")

		resp, err := apiClient(cmd).ListCases(page, limit, subjectID, state)
		if err != nil {
			return fmt.Errorf("failed to list cases: %w", err)
		}

		outputFormat, _ := cmd.Flags().GetString("output")
		if outputFormat == "json" {
			return output.JSON(resp.Cases)
		}
		if outputFormat == "yaml" {
			return output.YAML(resp.Cases)
		}

		if len(resp.Cases) == 0 {
			output.Info("No cases found")
			return nil
		}

		table := output.NewTable("ID", "Subject", "State", "Opened At", "Closed At")
		for _, c := range resp.Cases {
			closed := ""
			if c.ClosedAt != nil {
				closed = c.ClosedAt.Format("2006-01-02 15:04")
			}
			table.AddRow(
				c.ID,
				c.SubjectID,
				string(c.State),
				c.OpenedAt.Format("2006-01-02 15:04"),
				closed,
			)
		}
		table.Render()

		output.Info("\nShowing %d of %d total cases", len(resp.Cases), resp.Pagination.Total)
		return nil
	},
}

var casesGetCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Get case details",
	Long:  "Retrieve one remediation case with its audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd).GetCase(args[0])
		if err != nil {
			return fmt.Errorf("failed to get case: %w", err)
		}

		outputFormat, _ := cmd.Flags().GetString("output")
		if outputFormat == "json" {
			return output.JSON(c)
		}
		if outputFormat == "yaml" {
			return output.YAML(c)
		}

		output.Info("Case ID: %s", c.ID)
		output.Info("Subject: %s", c.SubjectID)
		output.Info("State: %s", c.State)
		output.Info("Assessment: %s", c.TriggeringAssessmentID)
		if c.EnforcementRef != "" {
			output.Info("Enforcement Ref: %s", c.EnforcementRef)
		}
		output.Info("Opened: %s", c.OpenedAt.Format("2006-01-02 15:04:05"))
		if c.ClosedAt != nil {
			output.Info("Closed: %s", c.ClosedAt.Format("2006-01-02 15:04:05"))
		}

		if len(c.AuditLog) > 0 {
			output.Info("\nAudit trail:")
			table := output.NewTable("Timestamp", "Actor", "Action", "Note")
			for _, e := range c.AuditLog {
				table.AddRow(
					e.Timestamp.Format("2006-01-02 15:04:05"),
					e.Actor,
					e.Action,
					e.Note,
				)
			}
			table.Render()
		}
		return nil
	},
}

var casesRestoreCmd = &cobra.Command{
	Use:   "restore [id]",
	Short: "Restore a blocked identity",
	Long:  "Lift the access block for a case and close it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd).RestoreCase(args[0])
		if err != nil {
			return fmt.Errorf("failed to restore: %w", err)
		}

		outputFormat, _ := cmd.Flags().GetString("output")
		if outputFormat == "json" {
			return output.JSON(c)
		}
		if outputFormat == "yaml" {
			return output.YAML(c)
		}

		output.Success("Access restored for subject %s (case %s is %s)", c.SubjectID, c.ID, c.State)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(casesCmd)
	casesCmd.AddCommand(casesListCmd)
	casesCmd.AddCommand(casesGetCmd)
	casesCmd.AddCommand(casesRestoreCmd)

	casesListCmd.Flags().Int("page", 1, "page number")
	casesListCmd.Flags().Int("limit", 50, "results per page")
	casesListCmd.Flags().String("subject", "", "filter by subject id")
	casesListCmd.Flags().String("state", "", "filter by state")
}
