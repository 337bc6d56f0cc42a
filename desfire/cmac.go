package desfire

// deriveSubkeys computes the CMAC sub-keys SK1/SK2 from the session key,
// per NIST SP 800-38B as tailored by the card: encrypt one zero block
// under sk0, then double twice with conditional XOR of the cipher's R
// constant whenever the shifted-out top bit was set.
func deriveSubkeys(c Cipher, sk0 []byte) (sk1, sk2 []byte, err error) {
	bl := c.blockLen()
	l, err := ecbEncryptBlock(c, sk0, make([]byte, bl))
	if err != nil {
		return nil, nil, err
	}
	sk1 = doubleBlock(l, c.subkeyConst())
	sk2 = doubleBlock(sk1, c.subkeyConst())
	return sk1, sk2, nil
}

// doubleBlock performs the SP 800-38B "dbl" operation: a big-endian
// left-shift by one bit, XORed with r if the most significant bit that
// was shifted out was 1.
func doubleBlock(in []byte, r byte) []byte {
	out := make([]byte, len(in))
	msb := byte(0)
	for i := len(in) - 1; i >= 0; i-- {
		cur := in[i]
		out[i] = (cur << 1) | msb
		msb = (cur >> 7) & 1
	}
	if in[0]&0x80 != 0 {
		out[len(out)-1] ^= r
	}
	return out
}

func xorBytes(dst, a, b []byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}

// cmacUpdate advances s.cmacIV over data, using the full-block-multiple
// branch (XOR last block with SK1) or the pad-then-SK2 branch. On
// return s.cmacIV is both the running chaining value and, for the
// full-block branch's tag, the first 8 bytes of a CMAC reply check.
func (s *Session) cmacUpdate(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	bl := s.cipher.blockLen()
	var padded []byte
	var subkey []byte
	if len(data) > 0 && len(data)%bl == 0 {
		padded = append([]byte{}, data...)
		subkey = s.sk1
	} else {
		padded = make([]byte, ((len(data)/bl)+1)*bl)
		copy(padded, data)
		padded[len(data)] = 0x80
		subkey = s.sk2
	}
	xorBytes(padded[len(padded)-bl:], padded[len(padded)-bl:], subkey)
	_, iv, err := cbcEncrypt(s.cipher, s.sk0, s.cmacIV, padded)
	if err != nil {
		return err
	}
	s.cmacIV = iv
	return nil
}
