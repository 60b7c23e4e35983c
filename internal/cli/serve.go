package cli

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpapi "github.com/PedroDircksen/Lighthouse/internal/http"
	"github.com/PedroDircksen/Lighthouse/internal/server"
	"github.com/PedroDircksen/Lighthouse/internal/sheets"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the notifier service: scheduler, channel session and HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		app := buildApp(cfg)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := app.connectSession(ctx); err != nil {
			return err
		}

		runner, store, err := app.buildRunner()
		if err != nil {
			return err
		}
		defer store.Close()
		runner.Start(ctx, cfg.Pipeline.Interval.Std())

		svc := httpapi.NewService(app.dispatch, app.sessions, cfg.Channel.SessionID)
		if cfg.Sheets.APIKey != "" && cfg.Sheets.SpreadsheetID != "" {
			src, err := sheets.New(sheets.Config{
				APIKey:        cfg.Sheets.APIKey,
				SpreadsheetID: cfg.Sheets.SpreadsheetID,
			})
			if err != nil {
				return err
			}
			svc.WithSheets(src)
		}

		srv, err := server.New(server.Config{Addr: cfg.Addr, Handler: httpapi.NewRouter(svc)})
		if err != nil {
			return err
		}

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()
		log.Printf("serve: listening on %s", cfg.Addr)

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		log.Printf("serve: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		runner.Stop()
		app.sessions.Shutdown(shutdownCtx)
		return nil
	},
}
