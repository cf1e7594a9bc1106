package vault

import "errors"

var (
	// ErrInvalidCredential is returned when a field is empty or contains the separator byte.
	ErrInvalidCredential = errors.New("vault: invalid credential")

	// ErrDecryption is returned for malformed ciphertext or ciphertext sealed by another key.
	ErrDecryption = errors.New("vault: decryption failed")
)
