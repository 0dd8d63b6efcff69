package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codedeck/go-codedeck/internal/config"
	"github.com/codedeck/go-codedeck/internal/server"
)

var (
	serveHost  string
	servePort  int
	serveToken string
	serveNoDB  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server exposing sessions and live streams",
	Long: `Starts the codedeck HTTP server.

The server exposes persisted session history, a liveness view of running
sessions, per-session WebSocket streams of normalized messages, and the
raw-event archive.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		if serveHost != "" {
			cfg.Server.Host = serveHost
		}
		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if serveToken != "" {
			cfg.Server.Token = serveToken
		}
		if serveNoDB {
			cfg.Archive.Enabled = false
		}

		srv, err := server.NewServer(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return srv.ListenAndServe(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "bind address (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default from config)")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "bearer token for authentication")
	serveCmd.Flags().BoolVar(&serveNoDB, "no-archive", false, "disable the raw-event archive")
	rootCmd.AddCommand(serveCmd)
}
