package keyvault_test

import (
	"path/filepath"
	"testing"

	"github.com/barnettlynn/desfire/internal/keyvault"
)

func TestCreatePutOpenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.json")
	pass := []byte("correct horse battery staple")

	v, err := keyvault.Create(path, pass, keyvault.CipherAES256GCM)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	entry := keyvault.Entry{Name: "master", Cipher: "aes", Slot: 0, Version: 1, Secret: make([]byte, 16)}
	if err := v.Put(entry); err != nil {
		t.Fatalf("Put: %v", err)
	}

	reopened, err := keyvault.Open(path, pass)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := reopened.Get("master")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != entry.Name || got.Version != entry.Version || len(got.Secret) != 16 {
		t.Fatalf("round-tripped entry mismatch: %+v", got)
	}
}

func TestOpenWrongPassphraseFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.json")
	if _, err := keyvault.Create(path, []byte("right"), keyvault.CipherChaCha20Poly1305); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := keyvault.Open(path, []byte("wrong"))
	if err == nil {
		t.Fatal("expected an error opening with the wrong passphrase")
	}
}

func TestGetMissingKeyFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.json")
	v, err := keyvault.Create(path, []byte("pass"), keyvault.CipherAES256GCM)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := v.Get("nope"); err != keyvault.ErrKeyNotFound {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestDeleteEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.json")
	v, err := keyvault.Create(path, []byte("pass"), keyvault.CipherAES256GCM)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := v.Put(keyvault.Entry{Name: "k1", Secret: make([]byte, 16)}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := v.Delete("k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := v.Get("k1"); err != keyvault.ErrKeyNotFound {
		t.Fatalf("expected key gone after delete, got %v", err)
	}
}

func TestListReflectsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.json")
	v, err := keyvault.Create(path, []byte("pass"), keyvault.CipherAES256GCM)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_ = v.Put(keyvault.Entry{Name: "a", Secret: make([]byte, 16)})
	_ = v.Put(keyvault.Entry{Name: "b", Secret: make([]byte, 16)})
	names := v.List()
	if len(names) != 2 {
		t.Fatalf("List() = %v, want 2 entries", names)
	}
}
