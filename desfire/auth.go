package desfire

import (
	"bytes"
	"context"
)

func authCmdFor(c Cipher) byte {
	switch c {
	case CipherAES128:
		return cmdAuthenticateAES
	case CipherDES:
		return cmdAuthenticateLegacy
	case CipherTripleDES:
		return cmdAuthenticateISO
	default:
		return 0
	}
}

// Authenticate runs the two-phase challenge/response handshake
// against keyNo with key under the given cipher, and on success installs
// the derived session key and CMAC sub-keys. A failed attempt leaves the
// session deauthenticated.
func (s *Session) Authenticate(ctx context.Context, keyNo byte, key []byte, c Cipher) error {
	s.Deauth()
	cmd := authCmdFor(c)
	bl := c.blockLen()
	if bl == 0 {
		return statusErr(cmd, KindParameterError)
	}

	reply1, err := s.transceiveFrames(ctx, cmd, []byte{cmd, keyNo})
	if err != nil {
		return err
	}
	if status := reply1[0]; status != 0x00 && status != cmdAdditionalFrame {
		return cardStatusErr(cmd, status)
	}
	if len(reply1) != 1+bl {
		return statusErr(cmd, KindBadReplyLength)
	}
	bEnc := reply1[1:]

	a, err := randomBytes(bl)
	if err != nil {
		return err
	}
	b, ivAfterB, err := cbcDecrypt(c, key, make([]byte, bl), bEnc)
	if err != nil {
		return err
	}

	msg := append(append([]byte{}, a...), rot1Left(b)...)
	cipherAB, ivAfterAB, err := cbcEncrypt(c, key, ivAfterB, msg)
	if err != nil {
		return err
	}

	frame2 := append([]byte{cmdAdditionalFrame}, cipherAB...)
	reply2, err := s.transceiveFrames(ctx, cmd, frame2)
	if err != nil {
		return err
	}
	if status := reply2[0]; status != 0x00 {
		return cardStatusErr(cmd, status)
	}
	if len(reply2) != 1+bl {
		return statusErr(cmd, KindBadReplyLength)
	}

	aPrime, _, err := cbcDecrypt(c, key, ivAfterAB, reply2[1:])
	if err != nil {
		return err
	}
	if !bytes.Equal(aPrime, rot1Left(a)) {
		return statusErr(cmd, KindAuthFailed)
	}

	sk0 := make([]byte, bl)
	copy(sk0[0:4], a[0:4])
	copy(sk0[4:8], b[0:4])
	if bl == 16 {
		copy(sk0[8:12], a[12:16])
		copy(sk0[12:16], b[12:16])
	}

	sk1, sk2, err := deriveSubkeys(c, sk0)
	if err != nil {
		return err
	}

	s.cipher = c
	s.keyNo = keyNo
	s.sk0 = sk0
	s.sk1 = sk1
	s.sk2 = sk2
	s.cmacIV = make([]byte, bl)
	return nil
}

// AuthenticateAES is a convenience wrapper for the common case.
func (s *Session) AuthenticateAES(ctx context.Context, keyNo byte, key []byte) error {
	return s.Authenticate(ctx, keyNo, key, CipherAES128)
}
