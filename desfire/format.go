package desfire

import "context"

var zeroAESKey = make([]byte, 16)
var zeroDESKey = make([]byte, 8)

// Format runs the caller-orchestrated reset-to-factory sequence: it tries
// to authenticate as the master key with the AES key the caller supplies,
// falls back to the all-zero AES key, and as a last resort migrates a
// legacy DES-keyed card to AES (see DESIGN.md for why this module supports
// that migration). After the card accepts cmd 0xFC, if key is non-zero and
// the card was not already keyed with it, it installs key as the new AES
// master key at keyVersion.
func (s *Session) Format(ctx context.Context, key []byte, keyVersion byte) error {
	const masterSlot = 0x00
	wantsKey := len(key) > 0 && !bytesAllZero(key)

	usedSuppliedKey := false
	authed := false
	if wantsKey && s.AuthenticateAES(ctx, masterSlot, key) == nil {
		authed = true
		usedSuppliedKey = true
	} else if s.AuthenticateAES(ctx, masterSlot, zeroAESKey) == nil {
		authed = true
	}

	if !authed {
		// Legacy DES-keyed card: migrate to an AES master key before
		// formatting.
		if err := s.Authenticate(ctx, masterSlot, zeroDESKey, CipherDES); err != nil {
			return statusErr(cmdFormatPICC, KindAuthFailed)
		}
		if _, err := s.dx(ctx, cmdFormatPICC, nil, TxModePlain, RxModePlain); err != nil {
			return err
		}
		if err := s.Authenticate(ctx, masterSlot, zeroDESKey, CipherDES); err != nil {
			return err
		}
		if err := s.ChangeKey(ctx, 0x80, 1, zeroAESKey, nil); err != nil {
			return err
		}
		if err := s.AuthenticateAES(ctx, masterSlot, zeroAESKey); err != nil {
			return err
		}
	} else {
		if _, err := s.dx(ctx, cmdFormatPICC, nil, TxModePlain, RxModePlain); err != nil {
			return err
		}
		// Formatting deauthenticates; re-authenticate with whichever key
		// got us in, to install the requested master key below.
		if usedSuppliedKey {
			if err := s.AuthenticateAES(ctx, masterSlot, key); err != nil {
				return err
			}
		} else if err := s.AuthenticateAES(ctx, masterSlot, zeroAESKey); err != nil {
			return err
		}
	}

	if wantsKey && !usedSuppliedKey {
		if err := s.ChangeKey(ctx, masterSlot, keyVersion, key, nil); err != nil {
			return err
		}
	}
	return nil
}

func bytesAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
