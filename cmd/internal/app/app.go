// Package app wires the macro-api runtime: config, logging, HTTP routes,
// the session registry, the job engine and the realtime gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bbang93/macro-api/cmd/internal/api"
	"github.com/bbang93/macro-api/cmd/internal/job"
	"github.com/bbang93/macro-api/cmd/internal/metrics"
	"github.com/bbang93/macro-api/cmd/internal/notify"
	"github.com/bbang93/macro-api/cmd/internal/rail"
	"github.com/bbang93/macro-api/cmd/internal/rail/bridge"
	"github.com/bbang93/macro-api/cmd/internal/realtime"
	"github.com/bbang93/macro-api/cmd/internal/session"
	"github.com/bbang93/macro-api/cmd/internal/vault"

	"golang.org/x/sync/errgroup"
)

// App is the application context: it owns one registry, one broadcaster
// and one engine, and hands them to the HTTP layer explicitly.
type App struct {
	cfg Config
	log Logger

	rails    *rail.Registry
	sessions *session.Registry
	events   *realtime.Broadcaster
	jobs     *job.Engine
	notifier *notify.Dispatcher
	metrics  *metrics.Metrics

	ws  *realtime.Gateway
	api *api.Handler

	draining atomic.Bool
}

// Option configures New.
type Option func(*options)

type options struct {
	connectors []rail.Connector
	sender     notify.Sender
}

// WithConnectors replaces the bridge connectors built from config.
func WithConnectors(c ...rail.Connector) Option {
	return func(o *options) { o.connectors = append(o.connectors, c...) }
}

// WithSender replaces the Telegram client.
func WithSender(s notify.Sender) Option {
	return func(o *options) { o.sender = s }
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	v, err := vault.New()
	if err != nil {
		return nil, fmt.Errorf("app: vault: %w", err)
	}

	connectors := o.connectors
	if len(connectors) == 0 {
		connectors, err = bridgeConnectors(cfg, log)
		if err != nil {
			return nil, err
		}
	}
	rails := rail.NewRegistry(connectors...)

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	events := realtime.NewBroadcaster(log, realtime.WithRecorder(m))
	sessions := session.NewRegistry(log, sessCfg, v, rails,
		session.WithObservers(events),
		session.WithRecorder(m),
	)

	sender := o.sender
	if sender == nil {
		sender = notify.NewTelegram(log, notify.TelegramConfig{APIURL: cfg.TelegramAPIURL, Timeout: cfg.NotifyTimeout})
	}
	store := notify.NewStore()
	dispatcher := notify.NewDispatcher(log, store, sender,
		notify.WithRecorder(m),
		notify.WithTimeout(cfg.NotifyTimeout),
	)

	engine := job.NewEngine(log, sessions, events,
		job.WithNotifier(dispatcher),
		job.WithRecorder(m),
	)

	// Nothing a session owned outlives it.
	sessions.OnDestroy(func(sessionID, _ string) { engine.Forget(sessionID) })
	sessions.OnDestroy(dispatcher.Forget)

	m.Gauge("session", "active", "Live sessions.", func() float64 { return float64(sessions.ActiveCount()) })
	m.Gauge("job", "active", "Jobs in pending or running state.", func() float64 { return float64(engine.ActiveCount()) })
	m.Gauge("ws", "observers", "Connected event observers.", func() float64 { return float64(events.TotalCount()) })
	m.Gauge("notify", "configured", "Sessions with notification settings.", func() float64 { return float64(store.Len()) })

	handler, err := api.NewHandler(log, api.LoadConfigFromEnv(), sessions, engine, dispatcher)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		log:      log,
		rails:    rails,
		sessions: sessions,
		events:   events,
		jobs:     engine,
		notifier: dispatcher,
		metrics:  m,
		ws:       realtime.NewGateway(log, events, sessions, engine),
		api:      handler,
	}, nil
}

func bridgeConnectors(cfg Config, log Logger) ([]rail.Connector, error) {
	var out []rail.Connector
	for _, b := range []struct {
		kind rail.Kind
		url  string
	}{
		{rail.KindSRT, cfg.SRTBridgeURL},
		{rail.KindKTX, cfg.KTXBridgeURL},
	} {
		if strings.TrimSpace(b.url) == "" {
			continue
		}
		c, err := bridge.New(log, bridge.Config{Kind: b.kind, BaseURL: b.url, Timeout: cfg.RailTimeout})
		if err != nil {
			return nil, fmt.Errorf("app: %s bridge: %w", b.kind, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// Run starts the HTTP server and background loops, and blocks until context
// cancellation or a fatal server error. Shutdown drains HTTP first, then
// jobs, then sessions.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 60*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	base := runtimeBaseURL(a.cfg.HTTPAddr)
	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"base_url", base,
		"ws_url", wsBaseURL(base)+"/ws/{session_id}",
		"rails", a.rails.Kinds(),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server.fail", "err", err)
			return err
		}
		return nil
	})

	g.Go(func() error { return a.sessions.Run(gctx) })

	g.Go(func() error {
		t := time.NewTicker(nonZeroDuration(a.cfg.LimiterSweepInterval, time.Minute))
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case now := <-t.C:
				if n := a.api.SweepLoginLimiter(now); n > 0 {
					a.log.Debug("ratelimit.sweep", "removed", n)
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", "context_done")
		return a.shutdown(srv)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.log.Info("server.stopped")
	return nil
}

func (a *App) shutdown(srv *http.Server) error {
	a.draining.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		errs = append(errs, err)
	}
	if err := a.jobs.Close(ctx); err != nil {
		a.log.Error("job.engine.close.fail", "err", err)
		errs = append(errs, err)
	}
	a.sessions.Close()
	return errors.Join(errs...)
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
