package api

import (
	"testing"
	"time"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("MACRO_API_MAX_BODY_BYTES", "2048")
	t.Setenv("MACRO_TRUST_PROXY", "true")
	t.Setenv("MACRO_LOGIN_RATE_MAX", "0")
	t.Setenv("MACRO_LOGIN_RATE_WINDOW", "30s")

	cfg := LoadConfigFromEnv()
	if cfg.MaxBodyBytes != 2048 || !cfg.TrustProxy || cfg.LoginRateMax != 0 || cfg.LoginRateWindow != 30*time.Second {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadConfigFromEnv_InvalidFallsBack(t *testing.T) {
	t.Setenv("MACRO_API_MAX_BODY_BYTES", "-1")
	t.Setenv("MACRO_TRUST_PROXY", "maybe")
	t.Setenv("MACRO_LOGIN_RATE_MAX", "lots")
	t.Setenv("MACRO_LOGIN_RATE_WINDOW", "forever")

	if cfg := LoadConfigFromEnv(); cfg != DefaultConfig() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}
