package commands

import (
	"os"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

var (
	// serverURL is the base URL of the p4reviewd JSON API.
	serverURL string

	// userName is sent as the acting Perforce user.
	userName string

	// outputFormat controls output format (text, json).
	outputFormat string
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "p4review",
	Short: "Perforce code review CLI",
	Long: `p4review talks to a running p4reviewd to list and act on reviews,
feed trigger events into the task queue and inspect the worker.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&serverURL, "server", envOr("P4REVIEW_SERVER", defaultServer),
		"Base URL of the p4reviewd API",
	)
	rootCmd.PersistentFlags().StringVar(
		&userName, "user", envOr("P4USER", ""),
		"Perforce user to act as (from $P4USER)",
	)
	rootCmd.PersistentFlags().StringVar(
		&outputFormat, "format", "text",
		"Output format: text, json",
	)

	rootCmd.AddCommand(reviewsCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(activityCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}
