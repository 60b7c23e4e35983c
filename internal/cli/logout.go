package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Tear down the channel session and wipe its credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		app := buildApp(cfg)
		if err := app.sessions.Logout(cmd.Context(), cfg.Channel.SessionID); err != nil {
			return err
		}
		fmt.Println("session credentials wiped; the next link starts fresh")
		return nil
	},
}
