// Package vault keeps rail credentials encrypted in process memory.
//
// The key is generated once per Vault from crypto/rand and never leaves the
// process, so ciphertext from a previous run can never be decrypted again.
package vault

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// separator joins user id and password inside the sealed buffer.
const separator = 0x00

// Vault seals (userID, password) pairs with XChaCha20-Poly1305.
type Vault struct {
	aead cipher.AEAD
}

// New constructs a Vault with a fresh random key.
func New() (*Vault, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	defer SecureErase(key)

	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("vault: key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("vault: cipher: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Encrypt seals userID and password. Neither field may contain a NUL byte.
// The returned slice is nonce || ciphertext.
func (v *Vault) Encrypt(userID, password string) ([]byte, error) {
	if userID == "" || password == "" {
		return nil, ErrInvalidCredential
	}
	if bytes.IndexByte([]byte(userID), separator) >= 0 || bytes.IndexByte([]byte(password), separator) >= 0 {
		return nil, ErrInvalidCredential
	}

	plain := make([]byte, 0, len(userID)+1+len(password))
	plain = append(plain, userID...)
	plain = append(plain, separator)
	plain = append(plain, password...)
	defer SecureErase(plain)

	nonce := make([]byte, v.aead.NonceSize(), v.aead.NonceSize()+len(plain)+v.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("vault: nonce: %w", err)
	}

	return v.aead.Seal(nonce, nonce, plain, nil), nil
}

// Decrypt opens a value produced by Encrypt on this Vault.
func (v *Vault) Decrypt(sealed []byte) (userID, password string, err error) {
	ns := v.aead.NonceSize()
	if len(sealed) < ns+v.aead.Overhead() {
		return "", "", ErrDecryption
	}

	plain, err := v.aead.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return "", "", ErrDecryption
	}
	defer SecureErase(plain)

	i := bytes.IndexByte(plain, separator)
	if i <= 0 || i == len(plain)-1 {
		return "", "", ErrDecryption
	}
	return string(plain[:i]), string(plain[i+1:]), nil
}

// SecureErase overwrites b with zero bytes.
func SecureErase(b []byte) {
	clear(b)
}
