package app

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, k := range []string{
		"MACRO_HTTP_ADDR", "MACRO_LOG_FORMAT", "MACRO_CORS_ORIGINS",
		"MACRO_SRT_BRIDGE_URL", "MACRO_RAIL_TIMEOUT", "MACRO_NOTIFY_TIMEOUT",
	} {
		t.Setenv(k, "")
	}

	cfg := LoadConfig()
	if cfg.HTTPAddr != "0.0.0.0:8000" || cfg.LogFormat != "json" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.RailTimeout != 30*time.Second || cfg.NotifyTimeout != 10*time.Second {
		t.Fatalf("unexpected timeouts: rail=%v notify=%v", cfg.RailTimeout, cfg.NotifyTimeout)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.SRTBridgeURL != "" {
		t.Fatalf("unexpected cors/bridge defaults: %+v", cfg)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("MACRO_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("MACRO_LOG_FORMAT", "pretty")
	t.Setenv("MACRO_SRT_BRIDGE_URL", "http://srt-bridge:9001")
	t.Setenv("MACRO_RAIL_TIMEOUT", "45s")
	t.Setenv("MACRO_NOTIFY_TIMEOUT", "nonsense")
	t.Setenv("MACRO_CORS_ORIGINS", "-")

	cfg := LoadConfig()
	if cfg.HTTPAddr != "127.0.0.1:9000" || cfg.LogFormat != "pretty" || cfg.SRTBridgeURL != "http://srt-bridge:9001" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.RailTimeout != 45*time.Second {
		t.Fatalf("rail timeout=%v", cfg.RailTimeout)
	}
	if cfg.NotifyTimeout != 10*time.Second {
		t.Fatalf("invalid duration should fall back, got %v", cfg.NotifyTimeout)
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Fatalf("\"-\" should disable CORS, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestEnvCSV(t *testing.T) {
	t.Setenv("MACRO_TEST_CSV", " a, ,b ,c")
	if got := EnvCSV("MACRO_TEST_CSV", "x"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("EnvCSV=%v", got)
	}

	t.Setenv("MACRO_TEST_CSV", "")
	if got := EnvCSV("MACRO_TEST_CSV", "x,y"); !reflect.DeepEqual(got, []string{"x", "y"}) {
		t.Fatalf("EnvCSV default=%v", got)
	}
}

func TestFlagsApply(t *testing.T) {
	t.Parallel()

	cfg := Config{HTTPAddr: "0.0.0.0:8000", LogLevel: "info", LogFormat: "json"}
	Flags{Addr: ":9999", LogLevel: ""}.apply(&cfg)
	if cfg.HTTPAddr != ":9999" || cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Fatalf("unexpected config after flags: %+v", cfg)
	}
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	valid := Config{
		HTTPAddr:           "0.0.0.0:8000",
		LogFormat:          "json",
		SRTBridgeURL:       "http://127.0.0.1:9001",
		TelegramAPIURL:     "https://api.telegram.org",
		CORSAllowedOrigins: []string{"http://localhost:3000", "http://127.0.0.1:*"},
	}
	if err := ValidateConfig(valid); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := map[string]func(c *Config){
		"empty addr":          func(c *Config) { c.HTTPAddr = " " },
		"bad log format":      func(c *Config) { c.LogFormat = "xml" },
		"no bridge":           func(c *Config) { c.SRTBridgeURL = "" },
		"bridge scheme":       func(c *Config) { c.SRTBridgeURL = "ftp://bridge" },
		"telegram no host":    func(c *Config) { c.TelegramAPIURL = "https://" },
		"cors bad origin":     func(c *Config) { c.CORSAllowedOrigins = []string{"localhost:3000"} },
		"cors star with cred": func(c *Config) { c.CORSAllowedOrigins = []string{"*"}; c.CORSAllowCredentials = true },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			c := valid
			c.CORSAllowedOrigins = append([]string(nil), valid.CORSAllowedOrigins...)
			mutate(&c)
			if err := ValidateConfig(c); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
