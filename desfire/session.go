package desfire

import "github.com/google/uuid"

// Session is the linear, mutable resource an authenticated exchange runs
// against: one owner, no concurrent use. A zero-value Session is valid and
// unauthenticated.
type Session struct {
	reader Reader

	cipher Cipher // cipherNone means not authenticated
	keyNo  byte
	sk0    []byte
	sk1    []byte
	sk2    []byte
	cmacIV []byte
	aid    [3]byte

	lastUID []byte

	id string // correlation id for logs
}

// NewSession wraps a Reader in an unauthenticated Session.
func NewSession(r Reader) *Session {
	return &Session{reader: r, id: uuid.NewString()}
}

// ID returns the session's log-correlation identifier.
func (s *Session) ID() string { return s.id }

// IsAuthenticated reports whether the session currently holds valid
// session keys (block_len != 0 in the original's terms).
func (s *Session) IsAuthenticated() bool { return s.cipher != cipherNone }

// Deauth clears authentication state without talking to the card.
func (s *Session) Deauth() {
	s.cipher = cipherNone
	s.sk0, s.sk1, s.sk2, s.cmacIV = nil, nil, nil, nil
}

// AID returns the currently selected application id, {0,0,0} for the PICC
// (master) level.
func (s *Session) AID() [3]byte { return s.aid }

// LastUID returns the UID captured by the most recent successful GetUID
// or GetVersion call, or nil if neither has been called yet. The wire
// protocol has no out-of-band new-card notification at this layer, so
// unlike a polling reader driver this is populated lazily, not eagerly.
func (s *Session) LastUID() []byte {
	if s.lastUID == nil {
		return nil
	}
	return append([]byte{}, s.lastUID...)
}

func (s *Session) blockLen() int {
	return s.cipher.blockLen()
}
