package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	sendTo      []string
	sendMessage string
)

func init() {
	sendCmd.Flags().StringSliceVar(&sendTo, "to", nil, "Destination phone (repeatable for bulk send)")
	sendCmd.Flags().StringVarP(&sendMessage, "message", "m", "", "Message text")
	_ = sendCmd.MarkFlagRequired("to")
	_ = sendCmd.MarkFlagRequired("message")
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a one-off message over the channel session",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		app := buildApp(cfg)
		ctx := cmd.Context()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			app.sessions.Shutdown(shutdownCtx)
		}()

		if !app.sessions.HasCredentials(cfg.Channel.SessionID) {
			return errors.New("session has never been linked; run `lighthouse link` first")
		}
		if err := app.connectSession(ctx); err != nil {
			return err
		}
		if err := app.waitReady(ctx, 30*time.Second); err != nil {
			return err
		}

		if len(sendTo) == 1 {
			if err := app.dispatch.SendText(ctx, sendTo[0], sendMessage); err != nil {
				return err
			}
			fmt.Println("sent")
			return nil
		}

		results := app.dispatch.Bulk(ctx, sendTo, sendMessage)
		failed := 0
		for _, res := range results {
			if res.OK {
				fmt.Printf("%s: ok\n", res.Phone)
			} else {
				fmt.Printf("%s: %s\n", res.Phone, res.Error)
				failed++
			}
		}
		if failed == len(results) {
			return errors.New("all sends failed")
		}
		return nil
	},
}
