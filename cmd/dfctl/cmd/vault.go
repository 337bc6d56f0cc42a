package cmd

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/barnettlynn/desfire/internal/keyvault"
)

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage the local encrypted card-key store",
}

var vaultInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new, empty key vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		pass, err := promptPassphrase("New vault passphrase: ")
		if err != nil {
			return err
		}
		_, err = keyvault.Create(viper.GetString("keyvault.path"), pass, keyvault.CipherAES256GCM)
		return err
	},
}

var vaultPutCmd = &cobra.Command{
	Use:   "put NAME SLOT VERSION HEXKEY",
	Short: "Store a card key under NAME",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		pass, err := promptPassphrase("Vault passphrase: ")
		if err != nil {
			return err
		}
		v, err := keyvault.Open(viper.GetString("keyvault.path"), pass)
		if err != nil {
			return err
		}
		var slot, version int
		if _, err := fmt.Sscanf(args[1], "%d", &slot); err != nil {
			return fmt.Errorf("invalid slot %q: %w", args[1], err)
		}
		if _, err := fmt.Sscanf(args[2], "%d", &version); err != nil {
			return fmt.Errorf("invalid version %q: %w", args[2], err)
		}
		secret, err := hex.DecodeString(args[3])
		if err != nil {
			return fmt.Errorf("invalid hex key: %w", err)
		}
		return v.Put(keyvault.Entry{
			Name:    args[0],
			Cipher:  "aes",
			Slot:    byte(slot),
			Version: byte(version),
			Secret:  secret,
		})
	},
}

var vaultListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the key names held in the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		pass, err := promptPassphrase("Vault passphrase: ")
		if err != nil {
			return err
		}
		v, err := keyvault.Open(viper.GetString("keyvault.path"), pass)
		if err != nil {
			return err
		}
		for _, name := range v.List() {
			fmt.Println(name)
		}
		return nil
	},
}

func promptPassphrase(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	return pass, nil
}

func init() {
	vaultCmd.AddCommand(vaultInitCmd, vaultPutCmd, vaultListCmd)
	rootCmd.AddCommand(vaultCmd)
}
