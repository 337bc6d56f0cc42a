package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/barnettlynn/desfire/internal/filemanifest"
	"github.com/barnettlynn/desfire/internal/keyvault"
)

var provisionCmd = &cobra.Command{
	Use:   "provision MANIFEST KEYNAME",
	Short: "Create applications and files from a YAML manifest",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		manifestPath, keyName := args[0], args[1]

		m, err := filemanifest.Load(manifestPath)
		if err != nil {
			return err
		}

		pass, err := promptPassphrase("Vault passphrase: ")
		if err != nil {
			return err
		}
		v, err := keyvault.Open(viper.GetString("keyvault.path"), pass)
		if err != nil {
			return err
		}
		entry, err := v.Get(keyName)
		if err != nil {
			return err
		}

		r, s, err := connect()
		if err != nil {
			return err
		}
		defer r.Close()

		ctx := context.Background()
		if err := s.AuthenticateAES(ctx, entry.Slot, entry.Secret); err != nil {
			return fmt.Errorf("authenticate to picc: %w", err)
		}
		if err := filemanifest.Apply(ctx, s, m, entry.Secret); err != nil {
			return fmt.Errorf("apply manifest: %w", err)
		}
		fmt.Printf("provisioned %d applications\n", len(m.Applications))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(provisionCmd)
}
