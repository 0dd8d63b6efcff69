package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/codedeck/go-codedeck/internal/deck"
	"github.com/codedeck/go-codedeck/internal/liveness"
	"github.com/codedeck/go-codedeck/internal/session"
	"github.com/codedeck/go-codedeck/internal/sources"
	"github.com/codedeck/go-codedeck/internal/stream"
)

var (
	sessionsEngine  string
	sessionsProject string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List and inspect persisted sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions for an engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine := deck.Engine(sessionsEngine)
		if !engine.Valid() {
			return fmt.Errorf("engine must be one of claude, codex, gemini")
		}

		registry := sources.NewRegistry()
		src, err := registry.Store(engine)
		if err != nil {
			return err
		}

		metas, err := src.ListSessions(cmd.Context(), sessionsProject)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}

		if outputJSON {
			return json.NewEncoder(os.Stdout).Encode(metas)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tMODIFIED\tFIRST PROMPT")
		for _, m := range metas {
			modified := ""
			if !m.ModifiedAt.IsZero() {
				modified = m.ModifiedAt.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", m.ID, modified, deck.TruncateString(m.FirstPrompt, 60))
		}
		return tw.Flush()
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Load a session and print its normalized messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine := deck.Engine(sessionsEngine)
		if !engine.Valid() {
			return fmt.Errorf("engine must be one of claude, codex, gemini")
		}

		registry := sources.NewRegistry()
		detector := liveness.NewDetector()
		norm := session.NewNormalizer()
		recon := session.NewReconnector(stream.NewBus(), norm)
		loader := session.NewLoader(registry, detector, recon)

		store := session.NewStore(deck.SessionMeta{
			ID:          args[0],
			ProjectPath: sessionsProject,
			Engine:      engine,
		})
		defer store.Close()

		loader.LoadWait(cmd.Context(), store)

		view := store.Snapshot()
		if view.Error != "" {
			return fmt.Errorf("load session: %s", view.Error)
		}

		if outputJSON {
			return json.NewEncoder(os.Stdout).Encode(view.Messages)
		}

		for i := range view.Messages {
			printMessage(&view.Messages[i])
		}
		return nil
	},
}

func printMessage(m *deck.Message) {
	text := m.FirstText()
	if text == "" && len(m.Blocks) > 0 {
		for i := range m.Blocks {
			b := &m.Blocks[i]
			switch b.Type {
			case "tool_use":
				text = "[tool_use: " + b.ToolName + "]"
			case "tool_result":
				text = "[tool_result] " + deck.TruncateString(b.ToolResult, 120)
			case "thinking":
				text = deck.TruncateString(b.Thinking, 120)
			}
			if text != "" {
				break
			}
		}
	}
	fmt.Printf("%-10s %s\n", m.Kind, deck.TruncateString(text, 160))
}

func init() {
	sessionsCmd.PersistentFlags().StringVarP(&sessionsEngine, "engine", "e", "claude", "engine (claude|codex|gemini)")
	sessionsCmd.PersistentFlags().StringVarP(&sessionsProject, "project", "p", "", "project path filter")
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	rootCmd.AddCommand(sessionsCmd)
}
