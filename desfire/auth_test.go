package desfire_test

import (
	"context"
	"testing"

	"github.com/barnettlynn/desfire/desfire"
	"github.com/barnettlynn/desfire/internal/simulator"
)

func newTestCard(masterKey []byte) *simulator.Card {
	return simulator.NewCard([7]byte{0x04, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66}, masterKey)
}

func TestAuthenticateAESSuccess(t *testing.T) {
	key := make([]byte, 16)
	card := newTestCard(key)
	s := desfire.NewSession(card)

	if s.IsAuthenticated() {
		t.Fatal("new session must not be authenticated")
	}
	if err := s.AuthenticateAES(context.Background(), 0, key); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !s.IsAuthenticated() {
		t.Fatal("session should be authenticated after a successful handshake")
	}
}

func TestAuthenticateAESWrongKeyFails(t *testing.T) {
	card := newTestCard(make([]byte, 16))
	s := desfire.NewSession(card)

	wrong := make([]byte, 16)
	wrong[0] = 0xFF
	err := s.AuthenticateAES(context.Background(), 0, wrong)
	if err == nil {
		t.Fatal("expected authentication failure with wrong key")
	}
	if !desfire.IsAuthError(err) {
		t.Fatalf("expected an auth-kind error, got %v", err)
	}
	if s.IsAuthenticated() {
		t.Fatal("session must stay unauthenticated after a failed handshake")
	}
}

func TestAuthenticateUnknownSlotFails(t *testing.T) {
	card := newTestCard(make([]byte, 16))
	s := desfire.NewSession(card)
	err := s.AuthenticateAES(context.Background(), 5, make([]byte, 16))
	if err == nil {
		t.Fatal("expected failure authenticating against a nonexistent key slot")
	}
}

func TestSelectApplicationDeauthenticates(t *testing.T) {
	card := newTestCard(make([]byte, 16))
	s := desfire.NewSession(card)
	if err := s.AuthenticateAES(context.Background(), 0, make([]byte, 16)); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if err := s.SelectApplication(context.Background(), [3]byte{}); err != nil {
		t.Fatalf("select: %v", err)
	}
	if s.IsAuthenticated() {
		t.Fatal("selecting an application must drop the session key")
	}
}
