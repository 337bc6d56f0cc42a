// Package logging configures the process-wide zerolog logger used by the
// command transcript and the CLI front end.
package logging

import (
	"encoding/hex"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init sets up the global zerolog logger with the given verbosity and
// output format.
func Init(debug, human bool) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	base := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if human {
		log.Logger = base.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339Nano,
		})
	} else {
		log.Logger = base
	}
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// Exchange logs one native-frame round trip between the host and a card.
// tx/rx are logged as hex, never interpreted, so the logger stays usable
// even for opcodes this build doesn't know about.
func Exchange(reader string, cmd byte, tx, rx []byte, status byte, err error) {
	ev := log.Debug()
	if err != nil {
		ev = log.Warn().Err(err)
	}
	ev.Str("event", "exchange").
		Str("reader", reader).
		Str("cmd", hex.EncodeToString([]byte{cmd})).
		Str("tx_hex", hex.EncodeToString(tx)).
		Str("rx_hex", hex.EncodeToString(rx)).
		Str("status", hex.EncodeToString([]byte{status})).
		Msg("card exchange")
}
