package desfire

import (
	"bytes"
	"context"
)

// txMax is the largest payload a single host-to-card fragment may carry
// before the 0xAF continuation protocol is used.
const txMax = 55

type txKind int

const (
	txPlain txKind = iota
	txAppendCMAC
	txEncrypted
)

// TxMode selects how dx prepares an outgoing command once a session is
// authenticated (it is always sent plain before authentication).
type TxMode struct {
	kind    txKind
	leading byte
}

// TxModePlain sends the command as built, no CMAC or encryption.
var TxModePlain = TxMode{kind: txPlain}

// TxModeAppendCMAC appends an 8-byte CMAC of the command to the payload.
var TxModeAppendCMAC = TxMode{kind: txAppendCMAC}

// TxModeEncrypted encrypts the command from byte `leading` onward (the
// leading bytes, including the command byte, stay in the clear), after
// appending a CRC32 and zero-padding to a block boundary. cmd 0xC4
// (ChangeKey) is the one exception: dx does not add the CRC for it, since
// the caller has already built its own CRC layout into the payload.
func TxModeEncrypted(leading byte) TxMode {
	return TxMode{kind: txEncrypted, leading: leading}
}

type rxKind int

const (
	rxPlain rxKind = iota
	rxEncrypted
)

// RxMode selects how dx validates/decodes the card's reply.
type RxMode struct {
	kind          rxKind
	expectedPlain byte
}

// RxModePlain accepts a plain reply, or verifies a trailing 8-byte CMAC
// when the session is authenticated and the reply carries one.
var RxModePlain = RxMode{kind: rxPlain}

// RxModeEncrypted expects an encrypted reply whose plaintext (before the
// trailing CRC) is exactly expectedPlain bytes.
func RxModeEncrypted(expectedPlain byte) RxMode {
	return RxMode{kind: rxEncrypted, expectedPlain: expectedPlain}
}

// exemptFromAFMerge reports whether cmd is one of the three authenticate
// opcodes, whose 0xAF status is a legitimate handshake step rather than a
// request to keep receiving. Only these three are exempt — not
// SelectApplication.
func exemptFromAFMerge(cmd byte) bool {
	return cmd == cmdAuthenticateLegacy || cmd == cmdAuthenticateISO || cmd == cmdAuthenticateAES
}

func roundUp(n, block int) int {
	if n <= 0 {
		return 0
	}
	if r := n % block; r != 0 {
		return n + (block - r)
	}
	return n
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// dx is the command transceiver. payload is everything after the
// command byte; dx prepends cmd itself. The returned reply has the status
// byte at reply[0] followed by whatever plaintext payload survives mode
// processing (CMAC/CRC bytes stripped).
func (s *Session) dx(ctx context.Context, cmd byte, payload []byte, tx TxMode, rx RxMode) ([]byte, error) {
	if cmd == cmdSelectApplication || cmd == cmdAuthenticateLegacy || cmd == cmdAuthenticateISO || cmd == cmdAuthenticateAES {
		s.Deauth()
	}

	buf := make([]byte, 1+len(payload), 1+len(payload)+32)
	buf[0] = cmd
	copy(buf[1:], payload)
	txLen := len(buf)

	if s.IsAuthenticated() {
		switch tx.kind {
		case txPlain:
			// Nothing is appended to the wire, but the running CMAC chain
			// still has to see this command so the reply's CMAC (or the
			// next encrypted exchange's IV) verifies correctly.
			if err := s.cmacUpdate(buf[:txLen]); err != nil {
				return nil, err
			}
		case txAppendCMAC:
			if err := s.cmacUpdate(buf[:txLen]); err != nil {
				return nil, err
			}
			buf = append(buf, s.cmacIV[:8]...)
			txLen += 8
		case txEncrypted:
			if cmd != cmdChangeKey {
				buf = appendCRC32LE(buf, crc32Jam(buf[:txLen]))
				txLen += 4
			}
			bl := s.blockLen()
			lead := int(tx.leading)
			padded := lead + roundUp(txLen-lead, bl)
			for len(buf) < padded {
				buf = append(buf, 0)
			}
			txLen = padded
			enc, iv, err := cbcEncrypt(s.cipher, s.sk0, s.cmacIV, buf[lead:txLen])
			if err != nil {
				return nil, err
			}
			copy(buf[lead:txLen], enc)
			s.cmacIV = iv
		}
	}

	reply, err := s.transceiveFrames(ctx, cmd, buf[:txLen])
	if err != nil {
		return nil, err
	}

	status := reply[0]
	if status != 0x00 && status != 0xAF {
		s.Deauth()
		return nil, cardStatusErr(cmd, status)
	}

	if !s.IsAuthenticated() {
		if rx.kind == rxEncrypted && len(reply) != int(rx.expectedPlain)+1 {
			return nil, statusErr(cmd, KindBadReplyLength)
		}
		return reply, nil
	}

	switch rx.kind {
	case rxPlain:
		if len(reply) == 1 {
			return reply, nil
		}
		if len(reply) < 9 {
			s.Deauth()
			return nil, statusErr(cmd, KindBadReplyLength)
		}
		payloadLen := len(reply) - 8
		tag := reply[payloadLen:]
		check := append([]byte{status}, reply[1:payloadLen]...)
		if err := s.cmacUpdate(check); err != nil {
			return nil, err
		}
		if !bytes.Equal(s.cmacIV[:8], tag) {
			s.Deauth()
			return nil, statusErr(cmd, KindRxCmacFail)
		}
		return reply[:payloadLen], nil

	case rxEncrypted:
		k := int(rx.expectedPlain)
		bl := s.blockLen()
		wantLen := 1 + roundUp(k+4, bl)
		if len(reply) != wantLen {
			s.Deauth()
			return nil, statusErr(cmd, KindBadEncryptedLength)
		}
		dec, iv, err := cbcDecrypt(s.cipher, s.sk0, s.cmacIV, reply[1:])
		if err != nil {
			return nil, err
		}
		s.cmacIV = iv
		msg := append([]byte{}, dec[:k]...)
		check := append(append([]byte{}, msg...), status)
		if crc32Jam(check) != le32(dec[k:k+4]) {
			s.Deauth()
			return nil, statusErr(cmd, KindRxCrcFail)
		}
		return append([]byte{status}, msg...), nil
	}
	return reply, nil
}

// transceiveFrames performs the TXMAX-fragmented send and the AF-merged
// receive, without any CMAC/CRC/encryption processing — that is dx's job.
// It is also used directly by the authenticate handshake, which builds its
// own raw frames.
func (s *Session) transceiveFrames(ctx context.Context, cmd byte, buf []byte) ([]byte, error) {
	offset := 0
	first := true
	for len(buf)-offset > txMax {
		chunk := append([]byte{}, buf[offset:offset+txMax]...)
		if !first {
			chunk[0] = cmdAdditionalFrame
		}
		rx := make([]byte, 1)
		n, err := s.reader.Exchange(ctx, chunk, rx)
		if err != nil {
			s.Deauth()
			return nil, statusErr(cmd, KindReaderError)
		}
		if n == 0 {
			s.Deauth()
			return nil, cardGoneErr(cmd)
		}
		if n != 1 || rx[0] != cmdAdditionalFrame {
			s.Deauth()
			if n >= 1 {
				return nil, cardStatusErr(cmd, rx[0])
			}
			return nil, statusErr(cmd, KindUnknownStatus)
		}
		offset += txMax - 1
		first = false
	}

	final := append([]byte{}, buf[offset:]...)
	if !first {
		final[0] = cmdAdditionalFrame
	}

	rxBuf := make([]byte, 2048)
	n, err := s.reader.Exchange(ctx, final, rxBuf)
	if err != nil {
		s.Deauth()
		return nil, statusErr(cmd, KindReaderError)
	}
	if n == 0 {
		s.Deauth()
		return nil, cardGoneErr(cmd)
	}
	result := append([]byte{}, rxBuf[:n]...)

	for len(result) > 0 && result[0] == cmdAdditionalFrame && !exemptFromAFMerge(cmd) {
		n, err := s.reader.Exchange(ctx, []byte{cmdAdditionalFrame}, rxBuf)
		if err != nil {
			s.Deauth()
			return nil, statusErr(cmd, KindReaderError)
		}
		if n == 0 {
			s.Deauth()
			return nil, cardGoneErr(cmd)
		}
		status := rxBuf[0]
		result[0] = status
		result = append(result, rxBuf[1:n]...)
	}
	return result, nil
}
