package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "smart-village",
	Short: "Smart-village camera streaming: transcoder workers, sessions, live sensor and count feeds",
	Long:  `HTTP + WebSocket API. Commands: api, migrate, seed, command.`,
	RunE:  runAPI, // default: run API (same as "smart-village api")
}

func init() {
	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
}

// Execute runs the root command and returns the error (for main to log.Fatal).
func Execute() error {
	return rootCmd.Execute()
}
