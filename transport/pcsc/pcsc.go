// Package pcsc implements desfire.Reader over a PC/SC smart card
// reader, using the pseudo-APDU wrapping contactless readers expect for
// native DESFire frames: CLA 0x90, INS is the DESFire command byte, Lc/data
// carry the frame body, and the card's status byte comes back as SW2 under
// SW1 0x91 (or a bare 90 00 for the no-data-status-0 case).
package pcsc

import (
	"context"
	"fmt"
	"strings"

	"github.com/ebfe/scard"

	"github.com/barnettlynn/desfire/desfire"
	"github.com/barnettlynn/desfire/internal/logging"
)

// Reader connects to one PC/SC reader slot and exchanges native DESFire
// frames with whatever contactless card is present.
type Reader struct {
	ctx  *scard.Context
	card *scard.Card
	name string
	atr  []byte
}

// ListReaders returns the names of all PC/SC readers visible to the
// system, in system enumeration order.
func ListReaders() ([]string, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("establish pcsc context: %w", err)
	}
	defer ctx.Release()

	readers, err := ctx.ListReaders()
	if err != nil {
		return nil, fmt.Errorf("list readers: %w", err)
	}
	return readers, nil
}

// Connect opens a shared-mode connection to the reader whose name
// contains nameSubstr (or the first reader, if nameSubstr is empty).
func Connect(nameSubstr string) (*Reader, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("establish pcsc context: %w", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil {
		ctx.Release()
		return nil, fmt.Errorf("list readers: %w", err)
	}
	if len(readers) == 0 {
		ctx.Release()
		return nil, fmt.Errorf("no pc/sc readers found")
	}

	name := readers[0]
	if nameSubstr != "" {
		found := false
		for _, r := range readers {
			if strings.Contains(strings.ToLower(r), strings.ToLower(nameSubstr)) {
				name = r
				found = true
				break
			}
		}
		if !found {
			ctx.Release()
			return nil, fmt.Errorf("no reader matching %q, have %v", nameSubstr, readers)
		}
	}

	card, err := ctx.Connect(name, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		ctx.Release()
		return nil, fmt.Errorf("connect to card in reader %q: %w", name, err)
	}

	status, err := card.Status()
	if err != nil {
		card.Disconnect(scard.LeaveCard)
		ctx.Release()
		return nil, fmt.Errorf("card status: %w", err)
	}

	return &Reader{ctx: ctx, card: card, name: name, atr: status.Atr}, nil
}

// Exchange implements desfire.Reader by wrapping tx in a pseudo-APDU,
// transmitting it, and unwrapping the reply's trailing status word back
// into the native status-byte-first form the engine expects.
func (r *Reader) Exchange(ctx context.Context, tx []byte, rx []byte) (n int, err error) {
	if len(tx) == 0 {
		return 0, fmt.Errorf("pcsc: empty frame")
	}
	cmd := tx[0]
	var status byte
	defer func() {
		logging.Exchange(r.name, cmd, tx, rx[:max(n, 0)], status, err)
	}()

	apdu := make([]byte, 0, 5+len(tx))
	apdu = append(apdu, 0x90, tx[0], 0x00, 0x00, byte(len(tx)-1))
	apdu = append(apdu, tx[1:]...)
	apdu = append(apdu, 0x00)

	resp, rerr := r.card.Transmit(apdu)
	if rerr != nil {
		err = fmt.Errorf("pcsc transmit: %w", rerr)
		return 0, err
	}
	if len(resp) < 2 {
		err = fmt.Errorf("pcsc: short response %x", resp)
		return 0, err
	}

	data := resp[:len(resp)-2]
	sw1, sw2 := resp[len(resp)-2], resp[len(resp)-1]

	switch {
	case sw1 == 0x91:
		status = sw2
	case sw1 == 0x90 && sw2 == 0x00:
		status = 0x00
	default:
		err = fmt.Errorf("pcsc: unexpected status word %02X%02X", sw1, sw2)
		return 0, err
	}

	if 1+len(data) > len(rx) {
		err = fmt.Errorf("pcsc: reply of %d bytes doesn't fit rx buffer of %d", 1+len(data), len(rx))
		return 0, err
	}
	rx[0] = status
	copy(rx[1:], data)
	n = 1 + len(data)
	return n, nil
}

// Close disconnects from the card and releases the PC/SC context.
func (r *Reader) Close() error {
	if r.card != nil {
		r.card.Disconnect(scard.LeaveCard)
	}
	if r.ctx != nil {
		r.ctx.Release()
	}
	return nil
}

// Name returns the underlying PC/SC reader name.
func (r *Reader) Name() string { return r.name }

// ATR returns the card's answer-to-reset bytes captured at connect time.
func (r *Reader) ATR() []byte { return r.atr }

var _ desfire.Reader = (*Reader)(nil)
