package fingerprint

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
	"sync"
)

const (
	// KeyEnv is the env var name for the fingerprint key.
	// #nosec G101 -- not a credential; it's an environment variable name.
	KeyEnv = "MACRO_LOG_FINGERPRINT_KEY"

	// MinKeyBytes is the minimum accepted length of a configured key.
	MinKeyBytes = 16

	shortLen = 12
)

var (
	keyOnce sync.Once
	key     []byte
	keyErr  error
)

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using k.
func HashHMACSHA256Hex(s string, k []byte) string {
	m := hmac.New(sha256.New, k)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// KeyFromEnv returns the configured key bytes (trimmed).
// Missing -> (nil, nil). Shorter than MinKeyBytes -> ErrKeyTooShort.
func KeyFromEnv() ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(KeyEnv))
	if raw == "" {
		return nil, nil
	}
	if len(raw) < MinKeyBytes {
		return nil, ErrKeyTooShort
	}
	return []byte(raw), nil
}

func processKey() ([]byte, error) {
	keyOnce.Do(func() {
		k, err := KeyFromEnv()
		if err != nil {
			keyErr = err
			return
		}
		if k == nil {
			k = make([]byte, 32)
			if _, err := rand.Read(k); err != nil {
				keyErr = ErrKeyRandom
				return
			}
		}
		key = k
	})
	return key, keyErr
}

// Validate forces key initialization and reports configuration problems.
// Call it at startup so a bad key fails fast instead of degrading log output.
func Validate() error {
	_, err := processKey()
	return err
}

// Of returns a short fingerprint of s suitable for log fields.
// Empty input yields "". If the key is unusable the unkeyed SHA-256 prefix is used.
func Of(s string) string {
	if s == "" {
		return ""
	}
	k, err := processKey()
	if err != nil || len(k) == 0 {
		return HashSHA256Hex(s)[:shortLen]
	}
	return HashHMACSHA256Hex(s, k)[:shortLen]
}
