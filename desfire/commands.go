package desfire

import "context"

// SelectApplication selects aid (use [3]byte{} for the PICC/master level).
// Selecting always deauthenticates the session, success or failure; on
// success the new aid is recorded.
func (s *Session) SelectApplication(ctx context.Context, aid [3]byte) error {
	_, err := s.dx(ctx, cmdSelectApplication, aid[:], TxModePlain, RxModePlain)
	if err != nil {
		return err
	}
	s.aid = aid
	return nil
}

// Version describes a card's hardware/software revision and identity, per
// the three-part GetVersion reply.
type Version struct {
	HWVendor, SWVendor                   byte
	HWType, SWType                       byte
	HWSubtype, SWSubtype                 byte
	HWMajor, SWMajor                     byte
	HWMinor, SWMinor                     byte
	HWStorage, SWStorage                 byte
	HWProtocol, SWProtocol               byte
	UID                                  [7]byte
	BatchNo                              [5]byte
	ProdYear, ProdWeek                   byte
}

// GetVersion reads the three-part version/identity structure and caches
// the UID on the session. The three parts are card-initiated AF
// continuations of a single logical reply; dx's receive loop merges them,
// so this is one call, not three (GetVersion is not in the AF-merge
// exemption list).
func (s *Session) GetVersion(ctx context.Context) (*Version, error) {
	r, err := s.dx(ctx, cmdGetVersion, nil, TxModePlain, RxModePlain)
	if err != nil {
		return nil, err
	}
	if len(r) != 1+28 {
		return nil, statusErr(cmdGetVersion, KindBadReplyLength)
	}
	r1, r2, r3 := r[1:8], r[8:15], r[15:29]

	v := &Version{
		HWVendor: r1[0], HWType: r1[1], HWSubtype: r1[2],
		HWMajor: r1[3], HWMinor: r1[4], HWStorage: r1[5], HWProtocol: r1[6],
		SWVendor: r2[0], SWType: r2[1], SWSubtype: r2[2],
		SWMajor: r2[3], SWMinor: r2[4], SWStorage: r2[5], SWProtocol: r2[6],
	}
	copy(v.UID[:], r3[0:7])
	copy(v.BatchNo[:], r3[7:12])
	v.ProdYear = r3[12]
	v.ProdWeek = r3[13]
	s.lastUID = append([]byte{}, v.UID[:]...)
	return v, nil
}

// KeySettings holds the bit-flag settings and key-count/type byte.
type KeySettings struct {
	Settings byte
	MaxKeys  byte
	Reserved byte // third byte, 0 if the card only returned two
}

// GetKeySettings accepts both the 2-byte and 3-byte reply variants a card
// may return (see DESIGN.md Open Question 2).
func (s *Session) GetKeySettings(ctx context.Context) (*KeySettings, error) {
	r, err := s.dx(ctx, cmdGetKeySettings, nil, TxModePlain, RxModePlain)
	if err != nil {
		return nil, err
	}
	n := len(r) - 1
	if n != 2 && n != 3 {
		return nil, statusErr(cmdGetKeySettings, KindBadReplyLength)
	}
	ks := &KeySettings{Settings: r[1], MaxKeys: r[2]}
	if n == 3 {
		ks.Reserved = r[3]
	}
	return ks, nil
}

// GetKeyVersion returns the version byte stored for keyNo.
func (s *Session) GetKeyVersion(ctx context.Context, keyNo byte) (byte, error) {
	r, err := s.dx(ctx, cmdGetKeyVersion, []byte{keyNo}, TxModePlain, RxModePlain)
	if err != nil {
		return 0, err
	}
	if len(r) != 2 {
		return 0, statusErr(cmdGetKeyVersion, KindBadReplyLength)
	}
	return r[1], nil
}

// ChangeKeySettings updates the current application (or PICC) key
// settings bit flags (DF_SET_*).
func (s *Session) ChangeKeySettings(ctx context.Context, settings byte) error {
	_, err := s.dx(ctx, cmdChangeKeySettings, []byte{settings}, TxModeEncrypted(1), RxModePlain)
	return err
}

// SetConfiguration sends a card configuration option/setting byte pair.
func (s *Session) SetConfiguration(ctx context.Context, option, settings byte) error {
	_, err := s.dx(ctx, cmdSetConfiguration, []byte{option, settings}, TxModeEncrypted(2), RxModePlain)
	return err
}

// ChangeKey installs newKey (with version newVersion) into keySlot. If
// keySlot differs from the currently authenticated key slot and oldKey is
// given, the wire format XORs old and new key material and appends two
// CRCs; otherwise (same slot, or oldKey nil) only the new key and version
// are sent with a single CRC. Changing the authenticated key invalidates
// the session on success. dx skips its own automatic CRC append for cmd
// 0xC4 because the layout below already builds it.
func (s *Session) ChangeKey(ctx context.Context, keySlot, newVersion byte, newKey, oldKey []byte) error {
	sameSlot := keySlot&0x0F == s.keyNo&0x0F

	var body []byte
	if sameSlot || oldKey == nil {
		body = append(append([]byte{}, newKey...), newVersion)
		body = appendCRC32LE(body, crc32Jam(append([]byte{cmdChangeKey, keySlot}, body...)))
	} else {
		xored := make([]byte, len(newKey))
		for i := range xored {
			xored[i] = newKey[i] ^ oldKey[i]
		}
		body = append(xored, newVersion)
		body = appendCRC32LE(body, crc32Jam(append([]byte{cmdChangeKey, keySlot}, body...)))
		body = appendCRC32LE(body, crc32Jam(newKey))
	}

	payload := append([]byte{keySlot}, body...)
	_, err := s.dx(ctx, cmdChangeKey, payload, TxModeEncrypted(2), RxModePlain)
	if err != nil {
		return err
	}
	if sameSlot {
		s.Deauth()
	}
	return nil
}

// GetApplicationIDs lists every application id present at the PICC level.
func (s *Session) GetApplicationIDs(ctx context.Context) ([][3]byte, error) {
	r, err := s.dx(ctx, cmdGetApplicationIDs, nil, TxModePlain, RxModePlain)
	if err != nil {
		return nil, err
	}
	payload := r[1:]
	if len(payload)%3 != 0 {
		return nil, statusErr(cmdGetApplicationIDs, KindBadReplyLength)
	}
	out := make([][3]byte, 0, len(payload)/3)
	for i := 0; i < len(payload); i += 3 {
		var aid [3]byte
		copy(aid[:], payload[i:i+3])
		out = append(out, aid)
	}
	return out, nil
}

// CreateApplication creates aid with the given key-settings bits and key
// count. keyCount's high bit is forced set to request AES keys.
func (s *Session) CreateApplication(ctx context.Context, aid [3]byte, settings, keyCount byte) error {
	payload := append(append([]byte{}, aid[:]...), settings, keyCount|0x80)
	_, err := s.dx(ctx, cmdCreateApplication, payload, TxModePlain, RxModePlain)
	return err
}

// DeleteApplication removes aid.
func (s *Session) DeleteApplication(ctx context.Context, aid [3]byte) error {
	_, err := s.dx(ctx, cmdDeleteApplication, aid[:], TxModePlain, RxModePlain)
	return err
}

// GetFreeMemory returns the number of free EEPROM bytes. The reply
// carries a 4-byte payload: a 3-byte little-endian value plus one
// reserved byte.
func (s *Session) GetFreeMemory(ctx context.Context) (uint32, error) {
	r, err := s.dx(ctx, cmdGetFreeMemory, nil, TxModePlain, RxModePlain)
	if err != nil {
		return 0, err
	}
	if len(r) != 5 {
		return 0, statusErr(cmdGetFreeMemory, KindBadReplyLength)
	}
	return uint32(r[1]) | uint32(r[2])<<8 | uint32(r[3])<<16, nil
}

// GetUID reads the card's real (non-random) 7-byte UID over the encrypted
// channel, and caches it on the session.
func (s *Session) GetUID(ctx context.Context) ([7]byte, error) {
	var uid [7]byte
	r, err := s.dx(ctx, cmdGetUID, nil, TxModePlain, RxModeEncrypted(7))
	if err != nil {
		return uid, err
	}
	if len(r) != 8 {
		return uid, statusErr(cmdGetUID, KindBadReplyLength)
	}
	copy(uid[:], r[1:])
	s.lastUID = append([]byte{}, uid[:]...)
	return uid, nil
}

// Commit commits pending writes in the current transaction.
func (s *Session) Commit(ctx context.Context) error {
	_, err := s.dx(ctx, cmdCommit, nil, TxModePlain, RxModePlain)
	return err
}

// Abort discards pending writes in the current transaction.
func (s *Session) Abort(ctx context.Context) error {
	_, err := s.dx(ctx, cmdAbort, nil, TxModePlain, RxModePlain)
	return err
}
