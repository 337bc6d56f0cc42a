package cmd

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
)

var formatCmd = &cobra.Command{
	Use:   "format HEXKEY",
	Short: "Format the PICC, wiping every application (requires the master key)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := hex.DecodeString(args[0])
		if err != nil {
			return fmt.Errorf("invalid hex key: %w", err)
		}
		r, s, err := connect()
		if err != nil {
			return err
		}
		defer r.Close()

		if err := s.Format(context.Background(), key, 0); err != nil {
			return fmt.Errorf("format: %w", err)
		}
		fmt.Println("PICC formatted")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(formatCmd)
}
