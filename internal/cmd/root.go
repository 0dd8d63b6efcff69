// Package cmd provides the CLI commands for codedeck.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/codedeck/go-codedeck/internal/decklog"
)

// global flags
var (
	logPath    string
	outputJSON bool
)

// rootCmd is the root command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "codedeck",
	Short: "Session lifecycle and streaming for AI coding-agent CLIs",
	Long: `codedeck loads, normalizes, and streams AI coding-agent sessions.

Supports: Claude Code, OpenAI Codex, Gemini CLI

Commands:
  serve     Run the HTTP server exposing sessions and live streams
  sessions  List and inspect persisted sessions
  live      List sessions whose engine process is still running
  tail      Follow a session's normalized messages in the terminal

Examples:
  codedeck serve                              # Start the server
  codedeck sessions list --engine claude      # List Claude sessions
  codedeck tail --engine codex <session-id>   # Follow a running session`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logPath != "" {
			return decklog.Init(logPath)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		decklog.Log.Close()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logPath, "log", "", "write debug log to file")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output JSON")
}
