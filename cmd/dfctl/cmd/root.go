// Package cmd provides the CLI commands for dfctl.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/barnettlynn/desfire/internal/config"
	"github.com/barnettlynn/desfire/internal/logging"
)

var cfg *config.Config

// rootCmd is the base command when dfctl is called without a subcommand.
var rootCmd = &cobra.Command{
	Use:           "dfctl",
	Short:         "Command-line driver for DESFire EV1/EV2 AES cards",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		logging.Init(viper.GetBool("debug"), cfg.Log.Format == "human")
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("reader", "", "PC/SC reader name substring (default: first reader)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("log-format", "", "log format (human, json)")

	viper.BindPFlag("reader.name", rootCmd.PersistentFlags().Lookup("reader"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}
