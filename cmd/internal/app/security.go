package app

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidConfig wraps every startup configuration failure.
var ErrInvalidConfig = errors.New("app: invalid config")

// ValidateConfig enforces startup policy before any component is built.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.HTTPAddr) == "" {
		return fmt.Errorf("%w: MACRO_HTTP_ADDR is empty", ErrInvalidConfig)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.LogFormat)) {
	case "", "json", "pretty":
	default:
		return fmt.Errorf("%w: MACRO_LOG_FORMAT must be json or pretty, got %q", ErrInvalidConfig, cfg.LogFormat)
	}

	if cfg.SRTBridgeURL == "" && cfg.KTXBridgeURL == "" {
		return fmt.Errorf("%w: set MACRO_SRT_BRIDGE_URL or MACRO_KTX_BRIDGE_URL", ErrInvalidConfig)
	}
	for key, raw := range map[string]string{
		"MACRO_SRT_BRIDGE_URL":   cfg.SRTBridgeURL,
		"MACRO_KTX_BRIDGE_URL":   cfg.KTXBridgeURL,
		"MACRO_TELEGRAM_API_URL": cfg.TelegramAPIURL,
	} {
		if raw == "" {
			continue
		}
		if err := validateHTTPURL(raw); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
		}
	}

	for _, o := range cfg.CORSAllowedOrigins {
		if o == "*" {
			if cfg.CORSAllowCredentials {
				return fmt.Errorf("%w: MACRO_CORS_ORIGINS=* cannot be combined with credentials", ErrInvalidConfig)
			}
			continue
		}
		if err := validateHTTPURL(strings.TrimSuffix(o, ":*")); err != nil {
			return fmt.Errorf("%w: MACRO_CORS_ORIGINS entry %q: %v", ErrInvalidConfig, o, err)
		}
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
