package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
// Component configs (session, api, realtime) are read by their own packages.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string // json | pretty

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	ShutdownTimeout   time.Duration

	// Empty disables the CORS middleware.
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// A provider kind is served only when its bridge URL is set.
	SRTBridgeURL string
	KTXBridgeURL string
	RailTimeout  time.Duration

	TelegramAPIURL string
	NotifyTimeout  time.Duration

	LimiterSweepInterval time.Duration
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("MACRO_HTTP_ADDR", "0.0.0.0:8000"),
		LogLevel:  EnvString("MACRO_LOG_LEVEL", "info"),
		LogFormat: EnvString("MACRO_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("MACRO_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("MACRO_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("MACRO_HTTP_WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       EnvDuration("MACRO_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("MACRO_HTTP_MAX_HEADER_BYTES", 1<<20),
		ShutdownTimeout:   EnvDuration("MACRO_SHUTDOWN_TIMEOUT", 10*time.Second),

		CORSAllowedOrigins:   EnvCSV("MACRO_CORS_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000"),
		CORSAllowCredentials: EnvBool("MACRO_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("MACRO_CORS_MAX_AGE", 600),

		SRTBridgeURL: EnvString("MACRO_SRT_BRIDGE_URL", ""),
		KTXBridgeURL: EnvString("MACRO_KTX_BRIDGE_URL", ""),
		RailTimeout:  EnvDuration("MACRO_RAIL_TIMEOUT", 30*time.Second),

		TelegramAPIURL: EnvString("MACRO_TELEGRAM_API_URL", "https://api.telegram.org"),
		NotifyTimeout:  EnvDuration("MACRO_NOTIFY_TIMEOUT", 10*time.Second),

		LimiterSweepInterval: EnvDuration("MACRO_LIMITER_SWEEP_INTERVAL", time.Minute),
	}
}
