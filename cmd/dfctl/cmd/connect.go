package cmd

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/barnettlynn/desfire/desfire"
	"github.com/barnettlynn/desfire/transport/pcsc"
)

// connect opens the configured PC/SC reader and wraps it in a fresh
// session. Callers are responsible for closing the returned reader.
func connect() (*pcsc.Reader, *desfire.Session, error) {
	r, err := pcsc.Connect(viper.GetString("reader.name"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect reader: %w", err)
	}
	return r, desfire.NewSession(r), nil
}
