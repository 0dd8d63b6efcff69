package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/codedeck/go-codedeck/internal/config"
	"github.com/codedeck/go-codedeck/internal/deck"
	"github.com/codedeck/go-codedeck/internal/liveness"
	"github.com/codedeck/go-codedeck/internal/sources"
)

var liveProject string

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "List sessions whose engine process is still running",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		registry := sources.NewRegistry()
		detector := liveness.NewDetector()
		detector.SetActiveWindow(cfg.Liveness.ActiveWindowDuration())

		var live []deck.SessionMeta
		for _, engine := range registry.Engines() {
			if !engine.SupportsLiveness() {
				continue
			}
			src, err := registry.Store(engine)
			if err != nil {
				continue
			}
			metas, err := src.ListSessions(cmd.Context(), liveProject)
			if err != nil {
				continue
			}
			running, err := detector.Filter(cmd.Context(), metas)
			if err != nil {
				return fmt.Errorf("liveness check: %w", err)
			}
			live = append(live, running...)
		}

		if outputJSON {
			if live == nil {
				live = []deck.SessionMeta{}
			}
			return json.NewEncoder(os.Stdout).Encode(live)
		}

		if len(live) == 0 {
			fmt.Println("No running sessions.")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ENGINE\tID\tMODIFIED\tPROJECT")
		for _, m := range live {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				m.Engine, m.ID, m.ModifiedAt.Format("15:04:05"), m.ProjectPath)
		}
		return tw.Flush()
	},
}

func init() {
	liveCmd.Flags().StringVarP(&liveProject, "project", "p", "", "project path filter")
	rootCmd.AddCommand(liveCmd)
}
