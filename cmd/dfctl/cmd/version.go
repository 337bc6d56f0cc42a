package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the card's GetVersion response and UID",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, s, err := connect()
		if err != nil {
			return err
		}
		defer r.Close()

		v, err := s.GetVersion(context.Background())
		if err != nil {
			return fmt.Errorf("get version: %w", err)
		}
		fmt.Printf("vendor=%02X type=%02X subtype=%02X version=%d.%d storage=%02X protocol=%02X\n",
			v.HWVendor, v.HWType, v.HWSubtype, v.HWMajor, v.HWMinor, v.HWStorage, v.HWProtocol)
		fmt.Printf("uid=%X batch=%X prod_week=%02X prod_year=%02X\n", v.UID, v.BatchNo, v.ProdWeek, v.ProdYear)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
