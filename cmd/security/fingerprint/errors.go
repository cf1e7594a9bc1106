package fingerprint

import "errors"

// Public, stable errors for callers.
var (
	ErrKeyTooShort = errors.New("fingerprint key too short")
	ErrKeyRandom   = errors.New("fingerprint key generation failed")
)
