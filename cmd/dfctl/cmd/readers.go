package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/barnettlynn/desfire/transport/pcsc"
)

var readersCmd = &cobra.Command{
	Use:   "readers",
	Short: "List PC/SC reader names visible to the system",
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := pcsc.ListReaders()
		if err != nil {
			return err
		}
		for i, n := range names {
			fmt.Printf("%d: %s\n", i, n)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(readersCmd)
}
