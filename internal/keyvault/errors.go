package keyvault

import "errors"

var (
	// ErrAuthFailed means the vault's AEAD tag didn't verify, almost
	// always because the passphrase was wrong.
	ErrAuthFailed = errors.New("keyvault: authentication failed, wrong passphrase or corrupted file")
	// ErrKeyNotFound is returned when a named key isn't present in the vault.
	ErrKeyNotFound = errors.New("keyvault: key not found")
	// ErrEmptyPassphrase is returned when a vault operation is attempted
	// with no passphrase material.
	ErrEmptyPassphrase = errors.New("keyvault: passphrase cannot be empty")
)
