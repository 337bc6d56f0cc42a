// Command dfctl drives DESFire EV1/EV2 AES cards over a PC/SC reader:
// querying version/UID, formatting, provisioning applications and files
// from a manifest, and managing the local encrypted key vault.
package main

import (
	"fmt"
	"os"

	"github.com/barnettlynn/desfire/cmd/dfctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
