// Package desfire implements a DESFire EV1 AES secure-channel engine and
// command transceiver: authentication, session-key and CMAC derivation,
// the framed command transceiver, and the card command surface. It does
// not talk to hardware directly; callers supply a Reader.
package desfire

import "context"

// Reader is the single abstraction the engine depends on: exchange one
// native DESFire frame with the card. Implementations must not reorder,
// merge, or split frames — one call is one card-level exchange.
//
// tx is sent verbatim, status byte first on the card's reply written into
// rx starting at rx[0]. The returned length is the number of bytes written
// into rx. A zero-length, nil-error return means the card is gone; any
// returned error is a transport failure.
type Reader interface {
	Exchange(ctx context.Context, tx []byte, rx []byte) (n int, err error)
}

// ErrCardGone is the sentinel Session errors carry (not Reader.Exchange
// itself, which signals the condition by returning n==0, err==nil) when
// the card left the field mid-exchange. Session methods return a
// *StatusError built from this Kind; match it with errors.Is or IsCardGone.
var ErrCardGone = &StatusError{Kind: KindCardGone}
