package simulator

import (
	"context"
	"errors"
	"sync"
)

// frameSize mirrors the host's txMax framing constant: a chunk of exactly
// this many bytes (cmd/continuation byte included) means more is coming.
const frameSize = 55

const cmdAdditionalFrame = 0xAF

const (
	cmdAuthenticateLegacy = 0x0A
	cmdAuthenticateISO    = 0x1A
	cmdAuthenticateAES    = 0xAA

	cmdSelectApplication  = 0x5A
	cmdGetVersion         = 0x60
	cmdGetKeySettings     = 0x45
	cmdGetKeyVersion      = 0x64
	cmdChangeKeySettings  = 0x54
	cmdSetConfiguration   = 0x5C
	cmdChangeKey          = 0xC4
	cmdGetApplicationIDs  = 0x6A
	cmdCreateApplication  = 0xCA
	cmdDeleteApplication  = 0xDA
	cmdCreateFileStandard = 0xCD
	cmdCreateFileBackup   = 0xCB
	cmdCreateFileValue    = 0xCC
	cmdCreateFileLinear   = 0xC1
	cmdCreateFileCyclic   = 0xC0
	cmdDeleteFile         = 0xDF
	cmdGetFileSettings    = 0xF5
	cmdChangeFileSettings = 0x5F
	cmdWriteData          = 0x3D
	cmdWriteRecord        = 0x3B
	cmdReadData           = 0xBD
	cmdReadRecords        = 0xBB
	cmdGetValue           = 0x6C
	cmdCredit             = 0x0C
	cmdLimitedCredit      = 0x1C
	cmdDebit              = 0xDC
	cmdGetFreeMemory      = 0x6E
	cmdGetFileIDs         = 0x6F
	cmdGetUID             = 0x51
	cmdCommit             = 0xC7
	cmdAbort              = 0xA7
	cmdFormatPICC         = 0xFC
)

// file is one application's stored object: a data file, value file, or
// record file, keyed by file number.
type file struct {
	typ    byte // 'D','B','V','L','C'
	comms  byte // 0 plain, 1 cmac, 3 encrypted
	access uint16

	data []byte // D/B

	value, min, max     int32 // V
	limitedCreditEnable bool

	recordSize, maxRecords uint32 // L/C
	records                [][]byte
}

// application is one AID's key table and file set.
type application struct {
	keys        [][]byte
	keyVersions []byte
	settings    byte
	files       map[byte]*file
}

// Card is an in-memory DESFire card: it speaks the same native frame
// protocol a real PICC does, enough to drive authenticate/session-key/CMAC
// bookkeeping and a minimal file store end to end.
type Card struct {
	mu sync.Mutex

	uid [7]byte

	apps       map[[3]byte]*application
	selected   [3]byte
	freeMemory uint32

	// authentication state, mirroring the host Session fields exactly so
	// the two sides can be compared line for line.
	cipher cipherKind
	authed bool
	keyNo  byte
	sk0    []byte
	sk1    []byte
	sk2    []byte
	cmacIV []byte

	// handshake-in-progress state for the two-phase authenticate exchange.
	pendingAuth *pendingAuth

	// inbound frame assembly.
	assembling bool
	inCmd      byte
	inbuf      []byte

	// queued continuation frames awaiting a {0xAF} pull from the host.
	outQueue [][]byte
}

type pendingAuth struct {
	cipher    cipherKind
	keyNo     byte
	key       []byte
	a         []byte
	ivAfterB []byte
}

// NewCard creates a fresh PICC-level card with masterKey installed as the
// AES master key (slot 0) and no applications.
func NewCard(uid [7]byte, masterKey []byte) *Card {
	c := &Card{
		uid:        uid,
		apps:       map[[3]byte]*application{},
		freeMemory: 1 << 20,
	}
	master := &application{
		keys:        [][]byte{append([]byte{}, masterKey...)},
		keyVersions: []byte{0},
		settings:    0x0F,
		files:       map[byte]*file{},
	}
	c.apps[[3]byte{}] = master
	return c
}

func (c *Card) app() *application { return c.apps[c.selected] }

func (c *Card) deauth() {
	c.authed = false
	c.sk0, c.sk1, c.sk2, c.cmacIV = nil, nil, nil, nil
	c.pendingAuth = nil
}

// Exchange implements desfire.Reader.
func (c *Card) Exchange(ctx context.Context, tx []byte, rx []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(tx) == 0 {
		return 0, errors.New("simulator: empty frame")
	}

	if tx[0] == cmdAdditionalFrame {
		if len(c.outQueue) > 0 {
			frame := c.outQueue[0]
			c.outQueue = c.outQueue[1:]
			return copy(rx, frame), nil
		}
		if c.assembling {
			c.inbuf = append(c.inbuf, tx[1:]...)
			if len(tx) == frameSize {
				return copy(rx, []byte{cmdAdditionalFrame}), nil
			}
			c.assembling = false
			return c.handle(ctx, c.inCmd, c.inbuf, rx)
		}
		if c.pendingAuth != nil {
			return c.authFrame(cmdAdditionalFrame, tx[1:], rx)
		}
		return copy(rx, []byte{0x00}), nil
	}

	if len(tx) == frameSize {
		c.assembling = true
		c.inCmd = tx[0]
		c.inbuf = append([]byte{}, tx[1:]...)
		return copy(rx, []byte{cmdAdditionalFrame}), nil
	}
	c.assembling = false
	return c.handle(ctx, tx[0], tx[1:], rx)
}

// handle verifies/decodes the fully-assembled frame, runs the command, and
// queues the (possibly multi-frame) reply.
func (c *Card) handle(ctx context.Context, cmd byte, raw []byte, rx []byte) (int, error) {
	isAuthCmd := cmd == cmdAuthenticateLegacy || cmd == cmdAuthenticateISO || cmd == cmdAuthenticateAES
	if cmd == cmdSelectApplication {
		c.deauth()
	} else if isAuthCmd && c.pendingAuth == nil {
		c.deauth()
	}

	if isAuthCmd {
		return c.authFrame(cmd, raw, rx)
	}

	txKind, leading := commandTxMode(cmd, raw)
	plain, err := c.decodeIncoming(cmd, raw, txKind, leading)
	if err != nil {
		return c.reply(0x7E, nil, rxPlainKind, 0, rx)
	}

	if cmd == cmdGetVersion {
		return c.getVersionReply(rx)
	}

	status, out, rxKind, expected := c.dispatch(cmd, plain)
	return c.reply(status, out, rxKind, expected, rx)
}

type txModeKind int

const (
	txPlainKind txModeKind = iota
	txCmacKind
	txEncKind
)

type rxModeKind int

const (
	rxPlainKind rxModeKind = iota
	rxEncKind
)

// commandTxMode mirrors the fixed table the host's command layer uses, plus
// file-comms-mode lookup for the data commands (see desfire/commands.go,
// desfire/files.go, desfire/data.go for the host side of this table).
func (c *Card) commandTxModeForFile(raw []byte) (txModeKind, byte) {
	if len(raw) == 0 {
		return txPlainKind, 0
	}
	f := c.app().files[raw[0]]
	if f == nil {
		return txPlainKind, 0
	}
	switch f.comms {
	case 1:
		return txCmacKind, 0
	case 3:
		return txEncKind, 8
	default:
		return txPlainKind, 0
	}
}

func commandTxMode(cmd byte, raw []byte) (txModeKind, byte) {
	switch cmd {
	case cmdChangeKeySettings:
		return txEncKind, 1
	case cmdSetConfiguration:
		return txEncKind, 2
	case cmdChangeKey, cmdChangeFileSettings:
		return txEncKind, 2
	}
	return txPlainKind, 0
}

func (c *Card) decodeIncoming(cmd byte, raw []byte, kind txModeKind, leading byte) ([]byte, error) {
	full := append([]byte{cmd}, raw...)

	if cmd == cmdWriteData || cmd == cmdWriteRecord || cmd == cmdCredit ||
		cmd == cmdLimitedCredit || cmd == cmdDebit {
		fk, ld := c.commandTxModeForFile(raw)
		kind, leading = fk, ld
	}
	if cmd == cmdChangeFileSettings && len(raw) > 0 {
		if f := c.app().files[raw[0]]; f != nil && f.access&0x000F == 0x000E {
			kind = txPlainKind
		}
	}

	if !c.authed {
		return raw, nil
	}

	switch kind {
	case txPlainKind:
		if err := c.cmacStep(full); err != nil {
			return nil, err
		}
		return raw, nil
	case txCmacKind:
		if len(raw) < 8 {
			return nil, errors.New("simulator: short cmac frame")
		}
		body := raw[:len(raw)-8]
		tag := raw[len(raw)-8:]
		check := append([]byte{full[0]}, body...)
		if err := c.cmacStep(check); err != nil {
			return nil, err
		}
		if string(c.cmacIV[:8]) != string(tag) {
			return nil, errors.New("simulator: cmac mismatch")
		}
		return body, nil
	case txEncKind:
		bl := c.cipher.blockLen()
		lead := int(leading)
		if lead < 1 || len(full) < lead || (len(full)-lead)%bl != 0 {
			return nil, errors.New("simulator: bad encrypted length")
		}
		dec, iv, err := cbcDecrypt(c.cipher, c.sk0, c.cmacIV, full[lead:])
		if err != nil {
			return nil, err
		}
		c.cmacIV = iv
		out := append([]byte{}, full[:lead]...)
		out = append(out, dec...)
		if full[0] != cmdChangeKey {
			// cmd||body||crc32, then zero padding of less than one block.
			for n := len(out) - 4; n >= 1 && len(out)-4-n < bl; n-- {
				if crc32Jam(out[:n]) == le32(out[n:n+4]) {
					return out[1:n], nil
				}
				if out[n+3] != 0 {
					break
				}
			}
			return nil, errors.New("simulator: crc mismatch")
		}
		return out[1:], nil
	}
	return raw, nil
}

func (c *Card) cmacStep(data []byte) error {
	iv, err := cmacUpdate(c.cipher, c.sk0, c.sk1, c.sk2, c.cmacIV, data)
	if err != nil {
		return err
	}
	c.cmacIV = iv
	return nil
}

// reply encodes status+payload per rxKind (when authenticated), splits it
// into frames matching the host's AF-merge expectations, queues everything
// but the first, and writes the first frame into rx.
func (c *Card) reply(status byte, payload []byte, rxKind rxModeKind, expected int, rx []byte) (int, error) {
	if status != 0x00 || !c.authed {
		frames := splitReply(status, payload, 59)
		return c.queueAndSend(frames, rx)
	}

	switch rxKind {
	case rxPlainKind:
		full := append([]byte{status}, payload...)
		if err := c.cmacStep(full); err != nil {
			return c.queueAndSend(splitReply(0x97, nil, 59), rx)
		}
		full = append(full, c.cmacIV[:8]...)
		return c.queueAndSend(splitReply(status, full[1:], 59), rx)
	case rxEncKind:
		bl := c.cipher.blockLen()
		body := append([]byte{}, payload...)
		check := append(append([]byte{}, body...), status)
		body = appendCRC32LE(body, crc32Jam(check))
		padded := roundUp(len(body), bl)
		for len(body) < padded {
			body = append(body, 0)
		}
		enc, iv, err := cbcEncrypt(c.cipher, c.sk0, c.cmacIV, body)
		if err != nil {
			return c.queueAndSend(splitReply(0x97, nil, 59), rx)
		}
		c.cmacIV = iv
		return c.queueAndSend(splitReply(status, enc, 59), rx)
	}
	return c.queueAndSend(splitReply(status, payload, 59), rx)
}

func (c *Card) queueAndSend(frames [][]byte, rx []byte) (int, error) {
	if len(frames) == 0 {
		return 0, nil
	}
	c.outQueue = frames[1:]
	return copy(rx, frames[0]), nil
}

// splitReply packs status+payload into one frame if it fits, otherwise a
// chain of 0xAF-prefixed continuations and a final status-prefixed frame.
func splitReply(status byte, payload []byte, chunk int) [][]byte {
	if len(payload) <= chunk {
		return [][]byte{append([]byte{status}, payload...)}
	}
	var frames [][]byte
	off := 0
	for len(payload)-off > chunk {
		frames = append(frames, append([]byte{cmdAdditionalFrame}, payload[off:off+chunk]...))
		off += chunk
	}
	frames = append(frames, append([]byte{status}, payload[off:]...))
	return frames
}

// splitFixed packs status+parts into frames whose payload sizes are exactly
// the given lengths (used for GetVersion's three fixed-size parts).
func splitFixed(parts [][]byte) [][]byte {
	frames := make([][]byte, len(parts))
	for i, p := range parts {
		status := byte(cmdAdditionalFrame)
		if i == len(parts)-1 {
			status = 0x00
		}
		frames[i] = append([]byte{status}, p...)
	}
	return frames
}
