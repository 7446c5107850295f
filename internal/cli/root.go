// Package cli implements the guardianctl command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "guardianctl",
	Short: "Identity Guardian CLI",
	Long: `guardianctl is the command-line interface for the Identity Guardian
remediation engine.

Inspect remediation cases, restore blocked identities, review risk
assessments, run governance intents, and seed test signals.`,
	Version: "0.1.0",
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("server", envOr("GUARDIAN_SERVER", "http://localhost:8090"), "guardian API base URL")
	rootCmd.PersistentFlags().String("token", os.Getenv("GUARDIAN_TOKEN"), "bearer token for the guardian API")
	rootCmd.PersistentFlags().String("output", "table", "output format: table, json, yaml")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// apiClient builds a client from the command's persistent flags.
func apiClient(cmd *cobra.Command) *Client {
	server, _ := cmd.Flags().GetString("server")
	token, _ := cmd.Flags().GetString("token")
	return NewClient(server, token)
}
