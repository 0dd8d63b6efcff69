package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codedeck/go-codedeck/internal/deck"
	"github.com/codedeck/go-codedeck/internal/session"
	"github.com/codedeck/go-codedeck/internal/sources"
	"github.com/codedeck/go-codedeck/internal/stream"
)

var (
	tailEngine  string
	tailProject string
)

var tailCmd = &cobra.Command{
	Use:   "tail <session-id>",
	Short: "Follow a session's normalized messages in the terminal",
	Long: `Opens a session's file and streams newly appended events as
normalized messages until interrupted or the session file is removed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine := deck.Engine(tailEngine)
		if !engine.Valid() {
			return fmt.Errorf("engine must be one of claude, codex, gemini")
		}
		sessionID := args[0]

		registry := sources.NewRegistry()
		src, err := registry.Store(engine)
		if err != nil {
			return err
		}

		// Resolve the session file through the history fetch.
		hist, err := src.LoadHistory(cmd.Context(), sessionID, tailProject)
		if err != nil {
			return fmt.Errorf("resolve session: %w", err)
		}
		if hist.Meta.FullPath == "" {
			return fmt.Errorf("session %s has no file to follow", sessionID)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		bus := stream.NewBus()
		norm := session.NewNormalizer()

		listener, unsub := bus.Subscribe(sessionID)
		defer unsub()

		go func() {
			if err := stream.TailFile(ctx, bus, sessionID, hist.Meta.FullPath); err != nil {
				bus.PublishError(sessionID, err)
				bus.Complete(sessionID)
			}
		}()

		enc := json.NewEncoder(os.Stdout)
		output := listener.Output
		errCh := listener.Errors
		for {
			select {
			case <-ctx.Done():
				return nil

			case frame, ok := <-output:
				if !ok {
					output = nil
					continue
				}
				msgs, err := norm.Normalize(engine, frame.Payload)
				if err != nil {
					continue
				}
				for i := range msgs {
					if outputJSON {
						enc.Encode(msgs[i])
					} else {
						printMessage(&msgs[i])
					}
				}

			case err, ok := <-errCh:
				if !ok {
					errCh = nil
					continue
				}
				fmt.Fprintf(os.Stderr, "stream error: %v\n", err)

			case <-listener.Done:
				return nil
			}
		}
	},
}

func init() {
	tailCmd.Flags().StringVarP(&tailEngine, "engine", "e", "claude", "engine (claude|codex|gemini)")
	tailCmd.Flags().StringVarP(&tailProject, "project", "p", "", "project path filter")
	rootCmd.AddCommand(tailCmd)
}
