// Package cmd defines the baron CLI: the HTTP server, a local REPL for
// trying the assistant, and schema migration.
package cmd

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "baron",
	Short: "Hebrew movie and TV recommendation assistant",
	Long: `Baron is a conversational recommendation backend. It streams model
replies over HTTP, grounds them in review articles via vector search,
and keeps per-conversation history and message quotas in PostgreSQL.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
}
