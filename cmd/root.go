// Package cmd implements the sage command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sage",
	Short: "Sage - knowledge-assistant gateway",
	Long: `Sage is an HTTP gateway in front of a hosted LLM and a vector-store
retrieval pipeline. It answers questions from an indexed knowledge base,
returns raw source snippets, and holds free-form conversations with
per-session memory.

Running sage with no arguments starts the HTTP server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
