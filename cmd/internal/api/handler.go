package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bbang93/macro-api/cmd/internal/job"
	"github.com/bbang93/macro-api/cmd/internal/notify"
	"github.com/bbang93/macro-api/cmd/internal/rail"
	"github.com/bbang93/macro-api/cmd/internal/ratelimit"
	"github.com/bbang93/macro-api/cmd/internal/session"
	"github.com/bbang93/macro-api/cmd/security/fingerprint"
)

// HeaderSessionID carries the session id on authenticated routes.
const HeaderSessionID = "X-Session-ID"

// Handler wires HTTP endpoints to the session registry, job engine and notifier.
type Handler struct {
	log *slog.Logger
	cfg Config

	sessions *session.Registry
	jobs     *job.Engine
	notifier *notify.Dispatcher
	login    *ratelimit.Keyed

	now func() time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, cfg Config, sessions *session.Registry, jobs *job.Engine, notifier *notify.Dispatcher, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if sessions == nil || jobs == nil || notifier == nil {
		return nil, errors.New("api: nil dependency")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		sessions: sessions,
		jobs:     jobs,
		notifier: notifier,
		login:    ratelimit.NewKeyed(cfg.LoginRateMax, cfg.LoginRateWindow),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Register wires the routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)
	mux.HandleFunc("GET /auth/session", h.handleSession)

	mux.HandleFunc("GET /stations", h.handleStations)
	mux.HandleFunc("POST /trains/search", h.handleSearch)

	mux.HandleFunc("POST /jobs", h.handleJobCreate)
	mux.HandleFunc("GET /jobs", h.handleJobList)
	mux.HandleFunc("GET /jobs/{id}", h.handleJobGet)
	mux.HandleFunc("DELETE /jobs/{id}", h.handleJobCancel)

	mux.HandleFunc("GET /reservations", h.handleReservations)
	mux.HandleFunc("DELETE /reservations/{id}", h.handleReservationCancel)
	mux.HandleFunc("POST /reservations/{id}/cancel", h.handleReservationCancel)
	mux.HandleFunc("POST /reservations/{id}/pay", h.handleReservationPay)

	mux.HandleFunc("GET /settings/telegram", h.handleTelegramGet)
	mux.HandleFunc("POST /settings/telegram", h.handleTelegramConfigure)
	mux.HandleFunc("DELETE /settings/telegram", h.handleTelegramDisable)
	mux.HandleFunc("POST /settings/telegram/test", h.handleTelegramTest)

	mux.HandleFunc("GET /health", h.handleHealth)
}

// SweepLoginLimiter drops idle limiter keys. Run periodically by the app.
func (h *Handler) SweepLoginLimiter(now time.Time) int {
	return h.login.Sweep(now)
}

// ---- auth ----

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r, h.cfg.TrustProxy)
	key := "unknown"
	if ip != nil {
		key = ip.String()
	}
	if ok, retry := h.login.Allow(key, h.now()); !ok {
		h.log.Warn("api.login.rate_limited", "ip", key)
		writeRateLimited(w, retry)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.writeErr(w, r, invalid("", "invalid request body"))
		return
	}
	kind, err := req.validate()
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	s, err := h.sessions.Create(r.Context(), kind, strings.TrimSpace(req.UserID), req.Password)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	info := s.UserInfo()
	writeJSON(w, http.StatusOK, loginResponse{
		SessionID:        s.ID,
		ExpiresAt:        s.ExpiresAt(),
		RailType:         s.Kind,
		UserName:         optional(info.Name),
		MembershipNumber: optional(info.MembershipNumber),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if id := strings.TrimSpace(r.Header.Get(HeaderSessionID)); id != "" {
		if h.sessions.Destroy(id) {
			h.log.Info("api.logout.ok", "session", fingerprint.Of(id))
		}
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Require(r.Header.Get(HeaderSessionID))
	if err != nil {
		writeJSON(w, http.StatusOK, sessionResponse{Valid: false})
		return
	}
	h.sessions.Refresh(s.ID)

	exp := s.ExpiresAt()
	kind := s.Kind
	writeJSON(w, http.StatusOK, sessionResponse{Valid: true, ExpiresAt: &exp, RailType: &kind})
}

// ---- trains ----

func (h *Handler) handleStations(w http.ResponseWriter, r *http.Request) {
	kind, err := rail.ParseKind(r.URL.Query().Get("rail_type"))
	if err != nil {
		h.writeErr(w, r, invalid("rail_type", "rail_type must be SRT or KTX"))
		return
	}
	writeJSON(w, http.StatusOK, stationsResponse{RailType: kind, Stations: rail.Stations(kind)})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	var req searchRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.writeErr(w, r, invalid("", "invalid request body"))
		return
	}
	q, err := req.query()
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	// Providers report steadier availability for a plain adult count.
	q.Passengers = q.Passengers.Aggregate()

	trains, err := callRail(r.Context(), h, s, func(c rail.Client) ([]rail.Train, error) {
		return c.SearchTrains(r.Context(), q)
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if trains == nil {
		trains = []rail.Train{}
	}
	writeJSON(w, http.StatusOK, trains)
}

// ---- jobs ----

func (h *Handler) handleJobCreate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	var req jobCreateRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.writeErr(w, r, invalid("", "invalid request body"))
		return
	}
	jr, err := req.toJob()
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	view, err := h.jobs.Create(s, jr)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) handleJobList(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.jobs.List(s.ID))
}

func (h *Handler) handleJobGet(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	view, err := h.jobs.GetForSession(s.ID, r.PathValue("id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if _, err := h.jobs.GetForSession(s.ID, id); err != nil {
		h.writeErr(w, r, err)
		return
	}
	if !h.jobs.CancelForSession(s.ID, id) {
		h.writeErr(w, r, job.ErrNotCancellable)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Job cancelled successfully"})
}

// ---- reservations ----

func (h *Handler) handleReservations(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	list, err := callRail(r.Context(), h, s, func(c rail.Client) ([]rail.Reservation, error) {
		return c.Reservations(r.Context())
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if list == nil {
		list = []rail.Reservation{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleReservationCancel(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	number := strings.TrimSpace(r.PathValue("id"))
	if number == "" {
		h.writeErr(w, r, invalid("reservation_id", "reservation id is required"))
		return
	}

	_, err := callRail(r.Context(), h, s, func(c rail.Client) (struct{}, error) {
		return struct{}{}, c.CancelReservation(r.Context(), number)
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.log.Info("api.reservation.cancel.ok", "session", fingerprint.Of(s.ID))
	writeJSON(w, http.StatusOK, messageResponse{Message: "Reservation cancelled successfully"})
}

func (h *Handler) handleReservationPay(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	number := strings.TrimSpace(r.PathValue("id"))

	var req paymentRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.writeErr(w, r, invalid("", "invalid request body"))
		return
	}
	card, err := req.card()
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	res, err := callRail(r.Context(), h, s, func(c rail.Client) (rail.PaymentResult, error) {
		return c.PayWithCard(r.Context(), number, card)
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.log.Info("api.reservation.pay.ok", "session", fingerprint.Of(s.ID), "amount", res.AmountPaid)
	writeJSON(w, http.StatusOK, res)
}

// ---- settings ----

func (h *Handler) handleTelegramGet(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.notifier.Store().View(s.ID))
}

func (h *Handler) handleTelegramConfigure(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	var req telegramRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.writeErr(w, r, invalid("", "invalid request body"))
		return
	}
	if err := req.validate(); err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.notifier.Store().Configure(s.ID, req.BotToken, req.ChatID))
}

func (h *Handler) handleTelegramDisable(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	h.notifier.Store().Disable(s.ID)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Telegram notifications disabled"})
}

func (h *Handler) handleTelegramTest(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	sent, msg := h.notifier.SendTest(r.Context(), s.ID)
	writeJSON(w, http.StatusOK, notificationTestResponse{Success: sent, Message: msg})
}

// ---- health ----

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "healthy",
		ActiveSessions: h.sessions.ActiveCount(),
		ActiveJobs:     h.jobs.ActiveCount(),
	})
}

// ---- helpers ----

// requireSession resolves the caller's session and slides its expiry.
func (h *Handler) requireSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Require(r.Header.Get(HeaderSessionID))
	if err != nil {
		h.writeErr(w, r, err)
		return nil, false
	}
	h.sessions.Refresh(s.ID)
	return s, true
}

// callRail runs call against the session's client. On ErrReauthRequired it
// logs in again once and retries; a failed re-login ends as SESSION_EXPIRED.
func callRail[T any](ctx context.Context, h *Handler, s *session.Session, call func(rail.Client) (T, error)) (T, error) {
	v, err := call(s.Client())
	if !errors.Is(err, rail.ErrReauthRequired) {
		return v, err
	}
	c, rerr := h.sessions.Reauthenticate(ctx, s)
	if rerr != nil {
		var zero T
		return zero, session.ErrSessionExpired
	}
	return call(c)
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64(retryAfter / time.Second)
		if retryAfter%time.Second != 0 {
			secs++
		}
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	writeCode(w, http.StatusTooManyRequests, codeRateLimited)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
