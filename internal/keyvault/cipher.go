package keyvault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// CipherSuite selects the AEAD used to protect a vault file at rest.
type CipherSuite int

const (
	CipherAES256GCM CipherSuite = iota
	CipherChaCha20Poly1305
)

func (c CipherSuite) String() string {
	switch c {
	case CipherAES256GCM:
		return "aes-256-gcm"
	case CipherChaCha20Poly1305:
		return "chacha20poly1305"
	default:
		return "unknown"
	}
}

// Engine provides authenticated encryption for vault blobs.
type Engine interface {
	Encrypt(nonce, plaintext []byte) ([]byte, error)
	Decrypt(nonce, ciphertext []byte) ([]byte, error)
	NonceSize() int
}

// AESGCMEngine implements Engine using AES-256-GCM.
type AESGCMEngine struct {
	aead cipher.AEAD
}

func NewAESGCMEngine(key []byte) (*AESGCMEngine, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("AES-256 requires a 32-byte key, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESGCMEngine{aead: aead}, nil
}

func (e *AESGCMEngine) Encrypt(nonce, plaintext []byte) ([]byte, error) {
	return e.aead.Seal(nil, nonce, plaintext, nil), nil
}

func (e *AESGCMEngine) Decrypt(nonce, ciphertext []byte) ([]byte, error) {
	pt, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return pt, nil
}

func (e *AESGCMEngine) NonceSize() int { return e.aead.NonceSize() }

// ChaCha20Poly1305Engine implements Engine using ChaCha20-Poly1305.
type ChaCha20Poly1305Engine struct {
	aead cipher.AEAD
}

func NewChaCha20Poly1305Engine(key []byte) (*ChaCha20Poly1305Engine, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("ChaCha20-Poly1305 requires a %d-byte key, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return &ChaCha20Poly1305Engine{aead: aead}, nil
}

func (e *ChaCha20Poly1305Engine) Encrypt(nonce, plaintext []byte) ([]byte, error) {
	return e.aead.Seal(nil, nonce, plaintext, nil), nil
}

func (e *ChaCha20Poly1305Engine) Decrypt(nonce, ciphertext []byte) ([]byte, error) {
	pt, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return pt, nil
}

func (e *ChaCha20Poly1305Engine) NonceSize() int { return e.aead.NonceSize() }

func newEngine(suite CipherSuite, key []byte) (Engine, error) {
	switch suite {
	case CipherAES256GCM:
		return NewAESGCMEngine(key)
	case CipherChaCha20Poly1305:
		return NewChaCha20Poly1305Engine(key)
	default:
		return nil, fmt.Errorf("unsupported cipher suite %v", suite)
	}
}

func generateNonce(e Engine) ([]byte, error) {
	nonce := make([]byte, e.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return nonce, nil
}
