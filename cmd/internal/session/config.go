package session

import (
	"os"
	"strings"
	"time"
)

// Config controls session lifetime and teardown.
type Config struct {
	// TTL is the sliding idle window; any authenticated activity resets it.
	TTL time.Duration

	// SweepInterval is how often expired sessions are destroyed eagerly.
	SweepInterval time.Duration

	// LogoutTimeout bounds the provider logout call during teardown.
	LogoutTimeout time.Duration

	// ReauthTimeout bounds a shared re-login, independent of the caller.
	ReauthTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		TTL:           30 * time.Minute,
		SweepInterval: 60 * time.Second,
		LogoutTimeout: 10 * time.Second,
		ReauthTimeout: 30 * time.Second,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional (durations must be valid Go duration strings):
//   - MACRO_SESSION_TTL
//   - MACRO_SESSION_SWEEP_INTERVAL
//   - MACRO_SESSION_LOGOUT_TIMEOUT
//   - MACRO_SESSION_REAUTH_TIMEOUT
//
// Returns ErrConfig if a value is present but invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	for _, f := range []struct {
		key string
		dst *time.Duration
	}{
		{"MACRO_SESSION_TTL", &cfg.TTL},
		{"MACRO_SESSION_SWEEP_INTERVAL", &cfg.SweepInterval},
		{"MACRO_SESSION_LOGOUT_TIMEOUT", &cfg.LogoutTimeout},
		{"MACRO_SESSION_REAUTH_TIMEOUT", &cfg.ReauthTimeout},
	} {
		v := strings.TrimSpace(os.Getenv(f.key))
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		*f.dst = d
	}

	return cfg, nil
}
