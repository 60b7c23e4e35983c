// Package cli wires the command tree and the composition root that
// assembles the pipeline from configuration.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/PedroDircksen/Lighthouse/internal/config"
)

var (
	configPath string
	rootCmd    *cobra.Command
)

func init() {
	rootCmd = &cobra.Command{
		Use:   "lighthouse",
		Short: "Lighthouse - client status update notifier",
		Long: `Lighthouse watches the task tracker for completed, tagged tasks and
sends each affected client a personalized status update over the
messaging channel, with email as a secondary channel.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default lighthouse.yaml)")
}

func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = config.ResolvePath()
	}
	return config.Load(path)
}

// Execute runs the root command.
func Execute(version string) error {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(importCmd)

	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
