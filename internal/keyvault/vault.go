// Package keyvault stores the AES/3DES/DES card keys dfctl uses to
// authenticate against DESFire cards, encrypted at rest under a
// passphrase-derived key.
package keyvault

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/crypto/argon2"
)

const (
	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
	saltSize      = 16
)

// Entry is one named card key held in a vault.
type Entry struct {
	Name    string `json:"name"`
	Cipher  string `json:"cipher"`  // "des", "3des", or "aes"
	Slot    byte   `json:"slot"`
	Version byte   `json:"version"`
	Secret  []byte `json:"secret"`
}

type onDiskFile struct {
	Version    int    `json:"version"`
	Suite      string `json:"suite"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Vault is an in-memory, passphrase-unlocked set of card key entries
// backed by a single encrypted file. Not safe for concurrent use by
// multiple goroutines; dfctl only ever opens one at a time.
type Vault struct {
	path    string
	suite   CipherSuite
	salt    []byte
	engine  Engine
	entries map[string]Entry
}

// Create initializes a brand-new, empty vault at path protected by
// passphrase, using suite for the at-rest cipher.
func Create(path string, passphrase []byte, suite CipherSuite) (*Vault, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	key := deriveKey(passphrase, salt)
	engine, err := newEngine(suite, key)
	if err != nil {
		return nil, err
	}
	v := &Vault{
		path:    path,
		suite:   suite,
		salt:    salt,
		engine:  engine,
		entries: map[string]Entry{},
	}
	return v, v.Save()
}

// Open unlocks an existing vault file with passphrase.
func Open(path string, passphrase []byte) (*Vault, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vault: %w", err)
	}
	var disk onDiskFile
	if err := json.Unmarshal(raw, &disk); err != nil {
		return nil, fmt.Errorf("parse vault: %w", err)
	}
	suite, err := parseSuite(disk.Suite)
	if err != nil {
		return nil, err
	}
	key := deriveKey(passphrase, disk.Salt)
	engine, err := newEngine(suite, key)
	if err != nil {
		return nil, err
	}
	plaintext, err := engine.Decrypt(disk.Nonce, disk.Ciphertext)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(plaintext, &entries); err != nil {
		return nil, fmt.Errorf("parse vault contents: %w", err)
	}
	v := &Vault{
		path:    path,
		suite:   suite,
		salt:    disk.Salt,
		engine:  engine,
		entries: make(map[string]Entry, len(entries)),
	}
	for _, e := range entries {
		v.entries[e.Name] = e
	}
	return v, nil
}

// Put stores or replaces a key entry and persists the vault.
func (v *Vault) Put(e Entry) error {
	v.entries[e.Name] = e
	return v.Save()
}

// Get retrieves a named key entry.
func (v *Vault) Get(name string) (Entry, error) {
	e, ok := v.entries[name]
	if !ok {
		return Entry{}, ErrKeyNotFound
	}
	return e, nil
}

// Delete removes a named key entry and persists the vault.
func (v *Vault) Delete(name string) error {
	if _, ok := v.entries[name]; !ok {
		return ErrKeyNotFound
	}
	delete(v.entries, name)
	return v.Save()
}

// List returns the names of all keys in the vault, in no particular order.
func (v *Vault) List() []string {
	names := make([]string, 0, len(v.entries))
	for name := range v.entries {
		names = append(names, name)
	}
	return names
}

// Save re-encrypts the current entry set under a fresh nonce and
// overwrites the vault file.
func (v *Vault) Save() error {
	entries := make([]Entry, 0, len(v.entries))
	for _, e := range v.entries {
		entries = append(entries, e)
	}
	plaintext, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	nonce, err := generateNonce(v.engine)
	if err != nil {
		return err
	}
	ciphertext, err := v.engine.Encrypt(nonce, plaintext)
	if err != nil {
		return err
	}
	disk := onDiskFile{
		Version:    1,
		Suite:      v.suite.String(),
		Salt:       v.salt,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}
	out, err := json.MarshalIndent(disk, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(v.path, out, 0o600)
}

func deriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
}

func parseSuite(s string) (CipherSuite, error) {
	switch s {
	case CipherAES256GCM.String():
		return CipherAES256GCM, nil
	case CipherChaCha20Poly1305.String():
		return CipherChaCha20Poly1305, nil
	default:
		return 0, fmt.Errorf("unknown cipher suite %q", s)
	}
}
