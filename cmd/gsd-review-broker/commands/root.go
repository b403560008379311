// Package commands implements the broker CLI: the serve loop plus the
// version subcommand.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// dbPath overrides the project-local database location.
	dbPath string

	// staticDir overrides the embedded dashboard assets.
	staticDir string

	// stdio serves MCP over stdio instead of the HTTP listener, for
	// clients that spawn the broker as a subprocess.
	stdio bool

	// noRotate disables file logging, console only.
	noRotate bool
)

// rootCmd runs the broker daemon; serving is the default action.
var rootCmd = &cobra.Command{
	Use:   "gsd-review-broker",
	Short: "Local review broker for proposer/reviewer agents",
	Long: `gsd-review-broker coordinates multi-round code review between a
proposer agent and one or more reviewer agents. It persists reviews in a
project-local sqlite store, validates diffs against the working tree, and
serves MCP tool calls plus a dashboard on loopback.`,
	RunE: runServe,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().StringVar(
		&dbPath, "db", "",
		"Path to the sqlite database "+
			"(default: <repo>/.planning/codex_review_broker.sqlite3)",
	)
	rootCmd.Flags().StringVar(
		&staticDir, "static-dir", "",
		"Serve dashboard assets from this directory instead of the "+
			"embedded copies",
	)
	rootCmd.Flags().BoolVar(
		&stdio, "stdio", false,
		"Serve MCP over stdio instead of HTTP",
	)
	rootCmd.Flags().BoolVar(
		&noRotate, "no-file-log", false,
		"Log to the console only",
	)

	rootCmd.AddCommand(versionCmd)
}
