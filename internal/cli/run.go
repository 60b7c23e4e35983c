package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a single pipeline run and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		app := buildApp(cfg)

		ctx := cmd.Context()
		if err := app.connectSession(ctx); err != nil {
			return err
		}
		if app.sessions.HasCredentials(cfg.Channel.SessionID) {
			if err := app.waitReady(ctx, 30*time.Second); err != nil {
				// Sends will fail per-task; the run itself still goes
				// through and records its ledger.
				log.Printf("run: %v", err)
			}
		}

		runner, store, err := app.buildRunner()
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := runner.RunOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("observed=%d qualified=%d dispatched=%d no_contact=%d watermark=%d\n",
			stats.Observed, stats.Qualified, stats.Dispatched, stats.NoContact, stats.NewWatermark)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		app.sessions.Shutdown(shutdownCtx)
		return nil
	},
}
