package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bbang93/macro-api/cmd/internal/ids"
	"github.com/bbang93/macro-api/cmd/internal/rail"
	"github.com/bbang93/macro-api/cmd/internal/vault"
	"github.com/bbang93/macro-api/cmd/security/fingerprint"
	v1 "github.com/bbang93/macro-api/contracts/realtime/v1"

	"golang.org/x/sync/singleflight"
)

// Destroy reasons, reported to hooks and metrics.
const (
	ReasonLogout   = "logout"
	ReasonExpired  = "expired"
	ReasonShutdown = "shutdown"
)

const sessionExpiredMessage = "세션이 만료되었습니다. 다시 로그인해주세요"

// Observers is the part of the event broadcaster a registry needs.
type Observers interface {
	Broadcast(sessionID, typ, jobID string, data any)
	CloseAll(sessionID, reason string)
}

// Recorder receives session lifecycle counts.
type Recorder interface {
	SessionCreated(kind string)
	SessionDestroyed(reason string)
	Reauthenticated(ok bool)
}

type nopObservers struct{}

func (nopObservers) Broadcast(string, string, string, any) {}
func (nopObservers) CloseAll(string, string)               {}

type nopRecorder struct{}

func (nopRecorder) SessionCreated(string)   {}
func (nopRecorder) SessionDestroyed(string) {}
func (nopRecorder) Reauthenticated(bool)    {}

// Registry is the in-memory session table.
type Registry struct {
	log   *slog.Logger
	cfg   Config
	vault *vault.Vault
	rails *rail.Registry

	observers Observers
	rec       Recorder
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session

	reauth singleflight.Group

	hooksMu   sync.RWMutex
	onDestroy []func(sessionID, reason string)
}

// Option configures a Registry.
type Option func(*Registry)

// WithObservers sets the broadcaster notified on teardown.
func WithObservers(o Observers) Option {
	return func(r *Registry) {
		if o != nil {
			r.observers = o
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Registry) {
		if rec != nil {
			r.rec = rec
		}
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry constructs a Registry.
func NewRegistry(log *slog.Logger, cfg Config, v *vault.Vault, rails *rail.Registry, opts ...Option) *Registry {
	if log == nil {
		log = slog.Default()
	}
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.LogoutTimeout <= 0 {
		cfg.LogoutTimeout = def.LogoutTimeout
	}
	if cfg.ReauthTimeout <= 0 {
		cfg.ReauthTimeout = def.ReauthTimeout
	}

	r := &Registry{
		log:       log,
		cfg:       cfg,
		vault:     v,
		rails:     rails,
		observers: nopObservers{},
		rec:       nopRecorder{},
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// TTL returns the configured sliding expiry window.
func (r *Registry) TTL() time.Duration { return r.cfg.TTL }

// OnDestroy registers fn to run after a session is torn down.
func (r *Registry) OnDestroy(fn func(sessionID, reason string)) {
	if fn == nil {
		return
	}
	r.hooksMu.Lock()
	r.onDestroy = append(r.onDestroy, fn)
	r.hooksMu.Unlock()
}

// Create logs in against the provider and registers a new session.
func (r *Registry) Create(ctx context.Context, kind rail.Kind, userID, password string) (*Session, error) {
	conn, err := r.rails.Connector(kind)
	if err != nil {
		return nil, err
	}

	sealed, err := r.vault.Encrypt(userID, password)
	if err != nil {
		if errors.Is(err, vault.ErrInvalidCredential) {
			return nil, newAuthError(CodeInvalidCredentials, nil)
		}
		return nil, fmt.Errorf("session: seal credentials: %w", err)
	}

	client, info, err := conn.Login(ctx, userID, password)
	if err != nil {
		vault.SecureErase(sealed)
		ae := classifyLogin(err)
		r.log.Info("session.create.rejected", "rail", string(kind), "code", ae.Code)
		return nil, ae
	}

	id, err := ids.NewSessionID()
	if err != nil {
		vault.SecureErase(sealed)
		r.logout(client, "")
		return nil, fmt.Errorf("session: id: %w", err)
	}

	now := r.now()
	s := &Session{
		ID:        id,
		Kind:      kind,
		CreatedAt: now,
		sealed:    sealed,
		client:    client,
		user:      info,
		expiresAt: now.Add(r.cfg.TTL),
	}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	r.rec.SessionCreated(string(kind))
	r.log.Info("session.create.ok", "session", fingerprint.Of(id), "rail", string(kind))
	return s, nil
}

// Get returns the session if it exists and has not expired.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok || s.expired(r.now()) {
		return nil, false
	}
	return s, true
}

// Require is the gate for authenticated operations.
func (r *Registry) Require(id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrSessionMissing
	}
	s, ok := r.Get(id)
	if !ok {
		return nil, ErrSessionExpired
	}
	return s, nil
}

// Refresh slides the expiry of a live session forward by TTL.
func (r *Registry) Refresh(id string) bool {
	s, ok := r.Get(id)
	if !ok {
		return false
	}
	s.extend(r.now().Add(r.cfg.TTL))
	return true
}

// Destroy removes a session and releases its resources.
// It reports whether a session was found; a second call returns false.
func (r *Registry) Destroy(id string) bool {
	return r.destroy(id, ReasonLogout)
}

func (r *Registry) destroy(id, reason string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return false
	}
	r.teardown(s, reason)
	return true
}

// teardown runs outside the registry lock.
func (r *Registry) teardown(s *Session, reason string) {
	cancels, client, sealed := s.teardown()

	for _, cancel := range cancels {
		cancel()
	}

	if reason == ReasonExpired {
		r.observers.Broadcast(s.ID, v1.TypeSessionExpired, "", v1.SessionExpiredData{Message: sessionExpiredMessage})
	}
	r.observers.CloseAll(s.ID, v1.CloseReasonSessionEnded)

	r.logout(client, s.ID)
	vault.SecureErase(sealed)

	r.hooksMu.RLock()
	hooks := append([]func(string, string){}, r.onDestroy...)
	r.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(s.ID, reason)
	}

	r.rec.SessionDestroyed(reason)
	r.log.Info("session.destroy.ok", "session", fingerprint.Of(s.ID), "reason", reason, "jobs_cancelled", len(cancels))
}

func (r *Registry) logout(client rail.Client, sessionID string) {
	lc, ok := client.(rail.LogoutClient)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.LogoutTimeout)
	defer cancel()
	if err := lc.Logout(ctx); err != nil {
		r.log.Warn("session.logout.fail", "session", fingerprint.Of(sessionID), "err", err)
	}
}

// Sweep destroys every session expired at now and returns how many were removed.
func (r *Registry) Sweep(now time.Time) int {
	var expired []*Session

	r.mu.Lock()
	for id, s := range r.sessions {
		if s.expired(now) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		r.teardown(s, ReasonExpired)
	}
	if len(expired) > 0 {
		r.log.Info("session.sweep", "expired", len(expired))
	}
	return len(expired)
}

// Run sweeps expired sessions every SweepInterval until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	t := time.NewTicker(r.cfg.SweepInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			r.Sweep(r.now())
		}
	}
}

// Close destroys every session. Used on shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		all = append(all, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range all {
		r.teardown(s, ReasonShutdown)
	}
}

// ActiveCount returns the number of live sessions.
func (r *Registry) ActiveCount() int {
	now := r.now()

	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, s := range r.sessions {
		if !s.expired(now) {
			n++
		}
	}
	return n
}

// Credentials decrypts the session's sealed credentials.
func (r *Registry) Credentials(s *Session) (userID, password string, err error) {
	sealed := s.sealedCopy()
	defer vault.SecureErase(sealed)
	if len(sealed) == 0 {
		return "", "", ErrSessionExpired
	}
	return r.vault.Decrypt(sealed)
}

// Reauthenticate logs in again with the stored credentials and swaps the
// session's client. Concurrent calls for one session share a single login.
func (r *Registry) Reauthenticate(ctx context.Context, s *Session) (rail.Client, error) {
	v, err, _ := r.reauth.Do(s.ID, func() (any, error) {
		userID, password, err := r.Credentials(s)
		if err != nil {
			return nil, fmt.Errorf("session: credentials: %w", err)
		}

		conn, err := r.rails.Connector(s.Kind)
		if err != nil {
			return nil, err
		}

		// Shared by every waiter; one caller's cancellation does not abort it.
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.ReauthTimeout)
		defer cancel()

		client, info, err := conn.Login(lctx, userID, password)
		if err != nil {
			return nil, fmt.Errorf("session: re-login: %w", err)
		}
		if !s.replaceClient(client, info) {
			r.logout(client, s.ID)
			return nil, ErrSessionExpired
		}
		return client, nil
	})

	ok := err == nil
	r.rec.Reauthenticated(ok)
	if !ok {
		r.log.Warn("session.reauth.fail", "session", fingerprint.Of(s.ID), "err", err)
		return nil, err
	}
	r.log.Info("session.reauth.ok", "session", fingerprint.Of(s.ID))
	return v.(rail.Client), nil
}
