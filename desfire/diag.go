package desfire

import "context"

// AuthSlotResult reports the outcome of trying one key slot in
// DiagnoseAuthSlots.
type AuthSlotResult struct {
	KeySlot byte
	Cipher  Cipher
	Err     error
}

// DiagnoseAuthSlots tries key against each of slots (AES, then legacy DES
// as a fallback per slot), reporting which succeed. Useful when recovering
// a card whose current key assignment is unknown. The session ends
// deauthenticated regardless of outcome, since each attempt deauthenticates
// before trying the next slot.
func DiagnoseAuthSlots(ctx context.Context, s *Session, key []byte, slots []byte) []AuthSlotResult {
	results := make([]AuthSlotResult, 0, len(slots))
	for _, slot := range slots {
		if err := s.AuthenticateAES(ctx, slot, key); err == nil {
			results = append(results, AuthSlotResult{KeySlot: slot, Cipher: CipherAES128})
			s.Deauth()
			continue
		}
		var desKey []byte
		if len(key) >= 8 {
			desKey = key[:8]
		} else {
			desKey = make([]byte, 8)
		}
		err := s.Authenticate(ctx, slot, desKey, CipherDES)
		results = append(results, AuthSlotResult{KeySlot: slot, Cipher: CipherDES, Err: err})
		s.Deauth()
	}
	return results
}
