package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var linkTimeout time.Duration

func init() {
	linkCmd.Flags().DurationVar(&linkTimeout, "timeout", 2*time.Minute, "How long to wait for the pairing to complete")
}

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Link the channel session (prints a pairing code to scan)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		app := buildApp(cfg)
		ctx := cmd.Context()

		if _, err := app.sessions.Connect(ctx, cfg.Channel.SessionID); err != nil {
			return err
		}
		fmt.Println("waiting for pairing; scan the code printed above when it appears")
		if err := app.waitReady(ctx, linkTimeout); err != nil {
			return err
		}
		fmt.Println("session linked")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		app.sessions.Shutdown(shutdownCtx)
		return nil
	},
}
