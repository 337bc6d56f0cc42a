package simulator

// authFrame drives the two-phase authenticate handshake. raw is the frame
// body after its first byte: phase 1 is {cmd,keyNo}, so raw is {keyNo};
// phase 2 arrives as {0xAF, encrypted(A||rotB)}, which Exchange routes here
// while a handshake is pending, so raw is the ciphertext.
func (c *Card) authFrame(cmd byte, raw []byte, rx []byte) (int, error) {
	kind := cipherKindFor(cmd)

	if c.pendingAuth == nil {
		if len(raw) != 1 {
			return c.queueAndSend(splitReply(0x9E, nil, 59), rx)
		}
		keyNo := raw[0]
		key := c.keyFor(keyNo, kind)
		if key == nil {
			return c.queueAndSend(splitReply(0xAE, nil, 59), rx)
		}
		bl := kind.blockLen()
		b := randomBytes(bl)
		bEnc, iv, err := cbcEncrypt(kind, key, make([]byte, bl), b)
		if err != nil {
			return c.queueAndSend(splitReply(0x97, nil, 59), rx)
		}
		c.pendingAuth = &pendingAuth{cipher: kind, keyNo: keyNo, key: key, a: b, ivAfterB: iv}
		return c.queueAndSend(splitReply(cmdAdditionalFrame, bEnc, 59), rx)
	}

	p := c.pendingAuth
	bl := p.cipher.blockLen()
	if len(raw) != 2*bl {
		c.pendingAuth = nil
		return c.queueAndSend(splitReply(0x9E, nil, 59), rx)
	}
	msg, ivAfterAB, err := cbcDecrypt(p.cipher, p.key, p.ivAfterB, raw)
	if err != nil {
		c.pendingAuth = nil
		return c.queueAndSend(splitReply(0x97, nil, 59), rx)
	}
	a2 := msg[:bl]
	bRot := msg[bl:]
	wantRot := rot1Left(p.a)
	mismatch := false
	for i := range wantRot {
		if wantRot[i] != bRot[i] {
			mismatch = true
		}
	}
	if mismatch {
		c.pendingAuth = nil
		return c.queueAndSend(splitReply(0xAE, nil, 59), rx)
	}

	aPrimeRot := rot1Left(a2)
	reply, _, err := cbcEncrypt(p.cipher, p.key, ivAfterAB, aPrimeRot)
	if err != nil {
		c.pendingAuth = nil
		return c.queueAndSend(splitReply(0x97, nil, 59), rx)
	}

	sk0 := make([]byte, bl)
	copy(sk0[0:4], a2[0:4])
	copy(sk0[4:8], p.a[0:4])
	if bl == 16 {
		copy(sk0[8:12], a2[12:16])
		copy(sk0[12:16], p.a[12:16])
	}
	sk1, sk2, err := deriveSubkeys(p.cipher, sk0)
	if err != nil {
		c.pendingAuth = nil
		return c.queueAndSend(splitReply(0x97, nil, 59), rx)
	}

	c.cipher = p.cipher
	c.keyNo = p.keyNo
	c.sk0, c.sk1, c.sk2 = sk0, sk1, sk2
	c.cmacIV = make([]byte, bl)
	c.authed = true
	c.pendingAuth = nil

	return c.queueAndSend(splitReply(0x00, reply, 59), rx)
}

func cipherKindFor(cmd byte) cipherKind {
	switch cmd {
	case cmdAuthenticateAES:
		return cipherAES
	case cmdAuthenticateISO:
		return cipher3DES
	default:
		return cipherDES
	}
}

func (c *Card) keyFor(keyNo byte, kind cipherKind) []byte {
	app := c.app()
	if app == nil || int(keyNo&0x0F) >= len(app.keys) {
		return nil
	}
	full := app.keys[keyNo&0x0F]
	if kind == cipherAES {
		if len(full) != 16 {
			return nil
		}
		return full
	}
	if len(full) < 8 {
		return nil
	}
	return full[:8]
}

func (c *Card) getVersionReply(rx []byte) (int, error) {
	r1 := []byte{0x04, 0x01, 0x01, 0x01, 0x00, 0x1A, 0x05}
	r2 := []byte{0x04, 0x01, 0x01, 0x01, 0x00, 0x1A, 0x05}
	r3 := append(append([]byte{}, c.uid[:]...), 0, 0, 0, 0, 0, 26, 1)
	if c.authed {
		if err := c.cmacStep(append(append(append([]byte{0x00}, r1...), r2...), r3...)); err != nil {
			return c.queueAndSend(splitReply(0x97, nil, 59), rx)
		}
		r3 = append(r3, c.cmacIV[:8]...)
	}
	return c.queueAndSend(splitFixed([][]byte{r1, r2, r3}), rx)
}

// dispatch runs the decoded command and returns the status byte, reply
// plaintext, and how the reply should be re-encoded for the wire.
func (c *Card) dispatch(cmd byte, p []byte) (status byte, out []byte, rxKind rxModeKind, expected int) {
	switch cmd {
	case cmdSelectApplication:
		var aid [3]byte
		if len(p) != 3 {
			return 0x9E, nil, rxPlainKind, 0
		}
		copy(aid[:], p)
		if _, ok := c.apps[aid]; !ok {
			return 0xA0, nil, rxPlainKind, 0
		}
		c.selected = aid
		return 0x00, nil, rxPlainKind, 0

	case cmdGetKeySettings:
		a := c.app()
		return 0x00, []byte{a.settings, byte(len(a.keys))}, rxPlainKind, 0

	case cmdGetKeyVersion:
		a := c.app()
		if len(p) != 1 || int(p[0]) >= len(a.keyVersions) {
			return 0x9E, nil, rxPlainKind, 0
		}
		return 0x00, []byte{a.keyVersions[p[0]]}, rxPlainKind, 0

	case cmdChangeKeySettings:
		if len(p) != 1 {
			return 0x9E, nil, rxPlainKind, 0
		}
		c.app().settings = p[0]
		return 0x00, nil, rxPlainKind, 0

	case cmdSetConfiguration:
		return 0x00, nil, rxPlainKind, 0

	case cmdChangeKey:
		return c.changeKey(p)

	case cmdGetApplicationIDs:
		var out []byte
		for aid := range c.apps {
			if aid == ([3]byte{}) {
				continue
			}
			out = append(out, aid[:]...)
		}
		return 0x00, out, rxPlainKind, 0

	case cmdCreateApplication:
		if len(p) < 5 {
			return 0x9E, nil, rxPlainKind, 0
		}
		var aid [3]byte
		copy(aid[:], p[:3])
		if _, exists := c.apps[aid]; exists {
			return 0xDE, nil, rxPlainKind, 0
		}
		keyCount := int(p[4] & 0x0F)
		c.apps[aid] = &application{
			keys:        make([][]byte, keyCount),
			keyVersions: make([]byte, keyCount),
			settings:    p[3],
			files:       map[byte]*file{},
		}
		for i := range c.apps[aid].keys {
			c.apps[aid].keys[i] = make([]byte, 16)
		}
		return 0x00, nil, rxPlainKind, 0

	case cmdDeleteApplication:
		var aid [3]byte
		if len(p) != 3 {
			return 0x9E, nil, rxPlainKind, 0
		}
		copy(aid[:], p)
		if _, ok := c.apps[aid]; !ok {
			return 0xA0, nil, rxPlainKind, 0
		}
		delete(c.apps, aid)
		return 0x00, nil, rxPlainKind, 0

	case cmdCreateFileStandard, cmdCreateFileBackup, cmdCreateFileValue, cmdCreateFileLinear, cmdCreateFileCyclic:
		return c.createFile(cmd, p)

	case cmdDeleteFile:
		if len(p) != 1 {
			return 0x9E, nil, rxPlainKind, 0
		}
		delete(c.app().files, p[0])
		return 0x00, nil, rxPlainKind, 0

	case cmdGetFileIDs:
		a := c.app()
		var ids []byte
		for fn := range a.files {
			ids = append(ids, fn)
		}
		return 0x00, ids, rxPlainKind, 0

	case cmdGetFileSettings:
		return c.getFileSettings(p)

	case cmdChangeFileSettings:
		return c.changeFileSettings(p)

	case cmdWriteData, cmdWriteRecord:
		return c.writeFile(cmd, p)

	case cmdReadData, cmdReadRecords:
		return c.readFile(cmd, p)

	case cmdGetValue:
		return c.getValue(p)

	case cmdCredit, cmdLimitedCredit, cmdDebit:
		return c.adjustValue(cmd, p)

	case cmdGetFreeMemory:
		v := c.freeMemory
		return 0x00, []byte{byte(v), byte(v >> 8), byte(v >> 16), 0x00}, rxPlainKind, 0

	case cmdGetUID:
		return 0x00, append([]byte{}, c.uid[:]...), rxEncKind, 7

	case cmdCommit, cmdAbort:
		return 0x00, nil, rxPlainKind, 0

	case cmdFormatPICC:
		for aid := range c.apps {
			if aid != ([3]byte{}) {
				delete(c.apps, aid)
			}
		}
		return 0x00, nil, rxPlainKind, 0
	}
	return 0x1C, nil, rxPlainKind, 0
}

func (c *Card) changeKey(p []byte) (byte, []byte, rxModeKind, int) {
	if len(p) < 1 {
		return 0x9E, nil, rxPlainKind, 0
	}
	slot := p[0]
	a := c.app()
	sameSlot := slot&0x0F == c.keyNo&0x0F
	body := p[1:]
	if sameSlot {
		if len(body) < 21 { // newKey(16) + version(1) + crc32(4)
			return 0x9E, nil, rxPlainKind, 0
		}
		newKey := body[:16]
		version := body[16]
		a.keys[slot&0x0F] = append([]byte{}, newKey...)
		a.keyVersions[slot&0x0F] = version
		c.deauth()
		return 0x00, nil, rxPlainKind, 0
	}
	if len(body) < 25 { // xored(16) + version(1) + crc32(4) + crc32(4)
		return 0x9E, nil, rxPlainKind, 0
	}
	oldKey := a.keys[slot&0x0F]
	xored := body[:16]
	version := body[16]
	newKey := make([]byte, 16)
	for i := range newKey {
		newKey[i] = xored[i] ^ oldKey[i]
	}
	a.keys[slot&0x0F] = newKey
	a.keyVersions[slot&0x0F] = version
	return 0x00, nil, rxPlainKind, 0
}

func (c *Card) createFile(cmd byte, p []byte) (byte, []byte, rxModeKind, int) {
	if len(p) < 4 {
		return 0x9E, nil, rxPlainKind, 0
	}
	fileNo := p[0]
	a := c.app()
	if _, exists := a.files[fileNo]; exists {
		return 0xDE, nil, rxPlainKind, 0
	}
	f := &file{comms: p[1], access: uint16(p[2]) | uint16(p[3])<<8}
	rest := p[4:]
	switch cmd {
	case cmdCreateFileStandard:
		f.typ = 'D'
		if len(rest) >= 3 {
			f.data = make([]byte, int(rest[0])|int(rest[1])<<8|int(rest[2])<<16)
		}
	case cmdCreateFileBackup:
		f.typ = 'B'
		if len(rest) >= 3 {
			f.data = make([]byte, int(rest[0])|int(rest[1])<<8|int(rest[2])<<16)
		}
	case cmdCreateFileValue:
		f.typ = 'V'
		if len(rest) >= 13 {
			f.min = int32(le32(rest[0:4]))
			f.max = int32(le32(rest[4:8]))
			f.value = int32(le32(rest[8:12]))
			f.limitedCreditEnable = rest[12] != 0
		}
	case cmdCreateFileLinear, cmdCreateFileCyclic:
		if cmd == cmdCreateFileLinear {
			f.typ = 'L'
		} else {
			f.typ = 'C'
		}
		if len(rest) >= 6 {
			f.recordSize = uint32(rest[0]) | uint32(rest[1])<<8 | uint32(rest[2])<<16
			f.maxRecords = uint32(rest[3]) | uint32(rest[4])<<8 | uint32(rest[5])<<16
		}
	}
	a.files[fileNo] = f
	return 0x00, nil, rxPlainKind, 0
}

func (c *Card) getFileSettings(p []byte) (byte, []byte, rxModeKind, int) {
	if len(p) != 1 {
		return 0x9E, nil, rxPlainKind, 0
	}
	f := c.app().files[p[0]]
	if f == nil {
		return 0xF0, nil, rxPlainKind, 0
	}
	out := []byte{f.comms, byte(f.access), byte(f.access >> 8)}
	switch f.typ {
	case 'D', 'B':
		out = append(out, byte(len(f.data)), byte(len(f.data)>>8), byte(len(f.data)>>16))
	case 'V':
		limited := byte(0)
		if f.limitedCreditEnable {
			limited = 1
		}
		out = append(out,
			byte(f.min), byte(f.min>>8), byte(f.min>>16), byte(f.min>>24),
			byte(f.max), byte(f.max>>8), byte(f.max>>16), byte(f.max>>24),
			byte(f.value), byte(f.value>>8), byte(f.value>>16), byte(f.value>>24),
			limited)
	case 'L', 'C':
		cur := uint32(len(f.records))
		out = append(out,
			byte(f.recordSize), byte(f.recordSize>>8), byte(f.recordSize>>16),
			byte(f.maxRecords), byte(f.maxRecords>>8), byte(f.maxRecords>>16),
			byte(cur), byte(cur>>8), byte(cur>>16))
	}
	return 0x00, out, rxPlainKind, 0
}

func (c *Card) changeFileSettings(p []byte) (byte, []byte, rxModeKind, int) {
	if len(p) < 4 {
		return 0x9E, nil, rxPlainKind, 0
	}
	f := c.app().files[p[0]]
	if f == nil {
		return 0xF0, nil, rxPlainKind, 0
	}
	f.comms = p[1]
	f.access = uint16(p[2]) | uint16(p[3])<<8
	return 0x00, nil, rxPlainKind, 0
}

func (c *Card) writeFile(cmd byte, p []byte) (byte, []byte, rxModeKind, int) {
	if len(p) < 7 {
		return 0x9E, nil, rxPlainKind, 0
	}
	f := c.app().files[p[0]]
	if f == nil {
		return 0xF0, nil, rxPlainKind, 0
	}
	offset := int(p[1]) | int(p[2])<<8 | int(p[3])<<16
	length := int(p[4]) | int(p[5])<<8 | int(p[6])<<16
	data := p[7:]
	if len(data) < length {
		return 0x7E, nil, rxPlainKind, 0
	}
	data = data[:length]
	if cmd == cmdWriteRecord {
		rec := append([]byte{}, data...)
		f.records = append(f.records, rec)
		if f.maxRecords > 0 && uint32(len(f.records)) > f.maxRecords {
			f.records = f.records[1:]
		}
		return 0x00, nil, rxPlainKind, 0
	}
	for len(f.data) < offset+length {
		f.data = append(f.data, 0)
	}
	copy(f.data[offset:offset+length], data)
	return 0x00, nil, rxPlainKind, 0
}

func (c *Card) readFile(cmd byte, p []byte) (byte, []byte, rxModeKind, int) {
	if len(p) < 7 {
		return 0x9E, nil, rxPlainKind, 0
	}
	f := c.app().files[p[0]]
	if f == nil {
		return 0xF0, nil, rxPlainKind, 0
	}
	rxKind := rxPlainKind
	if f.comms == 3 {
		rxKind = rxEncKind
	}
	if cmd == cmdReadData {
		offset := int(p[1]) | int(p[2])<<8 | int(p[3])<<16
		length := int(p[4]) | int(p[5])<<8 | int(p[6])<<16
		if length == 0 {
			length = len(f.data) - offset
		}
		if offset+length > len(f.data) || offset < 0 || length < 0 {
			return 0xBE, nil, rxPlainKind, 0
		}
		out := append([]byte{}, f.data[offset:offset+length]...)
		return 0x00, out, rxKind, length
	}
	count := int(p[4]) | int(p[5])<<8 | int(p[6])<<16
	if count == 0 {
		count = len(f.records)
	}
	if count > len(f.records) {
		return 0xBE, nil, rxPlainKind, 0
	}
	var out []byte
	for i := 0; i < count; i++ {
		out = append(out, f.records[i]...)
	}
	return 0x00, out, rxKind, len(out)
}

func (c *Card) getValue(p []byte) (byte, []byte, rxModeKind, int) {
	if len(p) != 1 {
		return 0x9E, nil, rxPlainKind, 0
	}
	f := c.app().files[p[0]]
	if f == nil || f.typ != 'V' {
		return 0xF0, nil, rxPlainKind, 0
	}
	rxKind := rxPlainKind
	if f.comms == 3 {
		rxKind = rxEncKind
	}
	v := uint32(f.value)
	return 0x00, []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}, rxKind, 4
}

func (c *Card) adjustValue(cmd byte, p []byte) (byte, []byte, rxModeKind, int) {
	if len(p) != 5 {
		return 0x9E, nil, rxPlainKind, 0
	}
	f := c.app().files[p[0]]
	if f == nil || f.typ != 'V' {
		return 0xF0, nil, rxPlainKind, 0
	}
	delta := int32(le32(p[1:5]))
	switch cmd {
	case cmdCredit, cmdLimitedCredit:
		if cmd == cmdLimitedCredit && !f.limitedCreditEnable {
			return 0x9D, nil, rxPlainKind, 0
		}
		if f.value+delta > f.max {
			return 0xBE, nil, rxPlainKind, 0
		}
		f.value += delta
	case cmdDebit:
		if f.value-delta < f.min {
			return 0xBE, nil, rxPlainKind, 0
		}
		f.value -= delta
	}
	return 0x00, nil, rxPlainKind, 0
}
