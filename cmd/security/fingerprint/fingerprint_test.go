package fingerprint

import (
	"strings"
	"testing"
)

func TestHashHelpers(t *testing.T) {
	t.Parallel()

	if got := HashSHA256Hex("abc"); got != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("HashSHA256Hex(abc)=%s", got)
	}
	a := HashHMACSHA256Hex("abc", []byte("k1"))
	b := HashHMACSHA256Hex("abc", []byte("k2"))
	if a == b || len(a) != 64 {
		t.Fatalf("unexpected hmac outputs: %s %s", a, b)
	}
}

func TestOf(t *testing.T) {
	t.Parallel()

	id := "0b8f6a2e-7a52-4a0a-9a52-3f3d2b7f8c11"
	fp := Of(id)
	if len(fp) != shortLen {
		t.Fatalf("len(Of())=%d want %d", len(fp), shortLen)
	}
	if strings.Contains(id, fp) {
		t.Fatalf("fingerprint leaks input: %s", fp)
	}
	if Of(id) != fp {
		t.Fatalf("fingerprint not stable within a process")
	}
	if Of("") != "" {
		t.Fatalf("empty input must yield empty fingerprint")
	}
}

func TestKeyFromEnv(t *testing.T) {
	t.Setenv(KeyEnv, "")
	k, err := KeyFromEnv()
	if err != nil || k != nil {
		t.Fatalf("missing key: k=%v err=%v", k, err)
	}

	t.Setenv(KeyEnv, "short")
	if _, err := KeyFromEnv(); err != ErrKeyTooShort {
		t.Fatalf("expected ErrKeyTooShort, got %v", err)
	}

	t.Setenv(KeyEnv, strings.Repeat("k", MinKeyBytes))
	k, err = KeyFromEnv()
	if err != nil || len(k) != MinKeyBytes {
		t.Fatalf("valid key: len=%d err=%v", len(k), err)
	}
}
