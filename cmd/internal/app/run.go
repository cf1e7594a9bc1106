package app

import (
	"context"
	"net"
	"os/signal"
	"strings"
	"syscall"
)

// Flags are command-line overrides applied on top of the environment.
// Empty fields keep the environment value.
type Flags struct {
	Addr      string
	LogLevel  string
	LogFormat string
}

func (f Flags) apply(cfg *Config) {
	if f.Addr != "" {
		cfg.HTTPAddr = f.Addr
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if f.LogFormat != "" {
		cfg.LogFormat = f.LogFormat
	}
}

// Run is the CLI entrypoint used by cmd/macroapi.
// It returns an error instead of calling os.Exit to keep defers effective and lint clean.
func Run(f Flags) error {
	cfg := LoadConfig()
	f.apply(&cfg)

	if err := ValidateConfig(cfg); err != nil {
		return err
	}
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	a, err := New(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.Run(ctx)
}

// runtimeBaseURL turns a listen address into a URL a local client can dial.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return "ws://" + base
	}
}
