package api

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls request limits and login throttling.
type Config struct {
	MaxBodyBytes    int64
	TrustProxy      bool
	LoginRateMax    int
	LoginRateWindow time.Duration
}

// DefaultConfig returns the defaults used when no env overrides are set.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:    1 << 20,
		LoginRateMax:    5,
		LoginRateWindow: time.Minute,
	}
}

// LoadConfigFromEnv loads API config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	def := DefaultConfig()
	return Config{
		MaxBodyBytes:    envInt64("MACRO_API_MAX_BODY_BYTES", def.MaxBodyBytes),
		TrustProxy:      envBool("MACRO_TRUST_PROXY", false),
		LoginRateMax:    envInt("MACRO_LOGIN_RATE_MAX", def.LoginRateMax),
		LoginRateWindow: envDuration("MACRO_LOGIN_RATE_WINDOW", def.LoginRateWindow),
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
