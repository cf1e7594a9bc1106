package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bbang93/macro-api/cmd/internal/ratelimit"
	"github.com/bbang93/macro-api/cmd/security/fingerprint"
	v1 "github.com/bbang93/macro-api/contracts/realtime/v1"

	"github.com/coder/websocket"
)

const (
	// Subprotocol is offered but not required; plain clients are accepted.
	wsSubprotocolV1 = "macro.events.v1"

	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 10 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	wsDefaultOriginRequired = false
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"

	errCodeBadMessage   = "INVALID_MESSAGE"
	errCodeCancelFailed = "CANCEL_FAILED"
	errCodeRateLimited  = "RATE_LIMITED"
)

// Sessions is the session registry as seen by the gateway.
// Refresh slides the expiry and reports false for unknown or expired sessions.
type Sessions interface {
	Refresh(sessionID string) bool
}

// Jobs cancels a job only when it belongs to sessionID.
type Jobs interface {
	CancelForSession(sessionID, jobID string) bool
}

// Gateway is the WebSocket entrypoint for job event streams at /ws/{session_id}.
//
// It enforces origin policy, rate limits and heartbeats, subscribes the
// connection to the Broadcaster, and handles ping and cancel_job frames.
type Gateway struct {
	log      *slog.Logger
	bc       *Broadcaster
	sessions Sessions
	jobs     Jobs

	devInsecure    bool
	originRequired bool
	allowedOrigins []string

	// Derived for websocket.Accept origin checks.
	originPatterns []string

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
	sendQueueSize   int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	rateEvents int
	rateWindow time.Duration
}

// NewGateway constructs a gateway configured from MACRO_WS_* environment variables.
func NewGateway(log *slog.Logger, bc *Broadcaster, sessions Sessions, jobs Jobs) *Gateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if bc == nil {
		bc = NewBroadcaster(log)
	}

	g := &Gateway{log: log, bc: bc, sessions: sessions, jobs: jobs}

	// Dev-only knob: skips websocket.Accept's own origin verification.
	g.devInsecure = envBoolWS("MACRO_WS_DEV_INSECURE", false)

	g.originRequired = envBoolWS("MACRO_WS_ORIGIN_REQUIRED", wsDefaultOriginRequired)
	g.allowedOrigins = envCSVWS("MACRO_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)
	g.originPatterns = deriveOriginPatternsFromAllowedOrigins(g.allowedOrigins)

	g.writeTimeout = envDurationWS("MACRO_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	g.readIdleTimeout = envDurationWS("MACRO_WS_READ_IDLE_TIMEOUT", wsDefaultReadIdle)

	g.sendQueueSize = envIntWS("MACRO_WS_SEND_QUEUE", wsDefaultSendQueueSize)
	if g.sendQueueSize < wsMinSendQueueSize {
		g.sendQueueSize = wsMinSendQueueSize
	}

	g.heartbeatEvery = envDurationWS("MACRO_WS_HEARTBEAT_INTERVAL", heartbeatInterval)
	g.heartbeatTimeout = envDurationWS("MACRO_WS_HEARTBEAT_TIMEOUT", heartbeatTimeout)

	g.rateEvents = envIntWS("MACRO_WS_RATE_EVENTS", rateLimitEvents)
	g.rateWindow = envDurationWS("MACRO_WS_RATE_WINDOW", rateLimitWindow)

	return g
}

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades the request and streams the session's job events.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	sessionID := strings.TrimSpace(r.PathValue("session_id"))

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{wsSubprotocolV1},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}

	if sessionID == "" || g.sessions == nil || !g.sessions.Refresh(sessionID) {
		g.log.Info("ws.reject.session", "session", fingerprint.Of(sessionID), "remote", r.RemoteAddr)
		_ = conn.Close(websocket.StatusCode(v1.CloseInvalidSession), v1.CloseReasonInvalidSession)
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	obs := NewObserver(sessionID, g.sendQueueSize)
	g.bc.Subscribe(sessionID, obs)
	defer g.bc.Unsubscribe(sessionID, obs)

	// A teardown between the first Refresh and Subscribe never saw obs.
	if !g.sessions.Refresh(sessionID) {
		g.log.Info("ws.reject.session", "session", fingerprint.Of(sessionID), "remote", r.RemoteAddr, "stage", "subscribe")
		obs.Close(v1.CloseReasonInvalidSession)
		_ = conn.Close(websocket.StatusCode(v1.CloseInvalidSession), v1.CloseReasonInvalidSession)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once

	// shutdown is idempotent. It does NOT close obs.Send.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.bc.Unsubscribe(sessionID, obs)
			obs.Close(reason)
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	rl := ratelimit.NewWindow(g.rateEvents, g.rateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-obs.Done():
				// Flush what was queued before the close (session_expired), then close normally.
				g.drain(ctx, conn, obs)
				shutdown(websocket.StatusNormalClosure, obs.CloseReason())
				return
			case ev := <-obs.Send:
				if err := writeEvent(ctx, conn, ev, g.writeTimeout); err != nil {
					g.log.Info("ws.write.fail", "session", fingerprint.Of(sessionID), "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-obs.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "session", fingerprint.Of(sessionID), "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.readIdleTimeout)
		msg, err := readInbound(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.bc.SendTo(obs, v1.TypeError, "", v1.ErrorData{Code: errCodeBadMessage, Message: "invalid JSON"})
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "session", fingerprint.Of(sessionID), "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		if !rl.Allow(time.Now()) {
			g.bc.SendTo(obs, v1.TypeError, "", v1.ErrorData{Code: errCodeRateLimited, Message: "too many messages"})
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		// Any inbound activity keeps the session alive.
		if !g.sessions.Refresh(sessionID) {
			shutdown(websocket.StatusCode(v1.CloseInvalidSession), v1.CloseReasonInvalidSession)
			break readLoop
		}

		if err := msg.Validate(); err != nil {
			g.bc.SendTo(obs, v1.TypeError, "", v1.ErrorData{Code: errCodeBadMessage, Message: err.Error()})
			continue readLoop
		}

		switch msg.Type {
		case v1.TypePing:
			g.bc.SendTo(obs, v1.TypePong, "", v1.PongData{Timestamp: msg.Timestamp})

		case v1.TypeCancelJob:
			jobID := strings.TrimSpace(msg.JobID)
			if g.jobs == nil || !g.jobs.CancelForSession(sessionID, jobID) {
				g.bc.SendTo(obs, v1.TypeError, jobID, v1.ErrorData{Code: errCodeCancelFailed, Message: "작업을 취소할 수 없습니다"})
				continue readLoop
			}
			g.log.Info("ws.cancel_job.ok", "session", fingerprint.Of(sessionID), "job_id", jobID)
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

func (g *Gateway) drain(ctx context.Context, conn *websocket.Conn, obs *Observer) {
	for {
		select {
		case ev := <-obs.Send:
			if err := writeEvent(ctx, conn, ev, g.writeTimeout); err != nil {
				return
			}
		default:
			return
		}
	}
}

// ---- frame IO ----

func readInbound(ctx context.Context, conn *websocket.Conn) (v1.Inbound, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Inbound{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Inbound{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var msg v1.Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return v1.Inbound{}, err
	}
	return msg, nil
}

func writeEvent(parent context.Context, conn *websocket.Conn, ev v1.Event, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return readErrBadJSON
	}
	s := err.Error()
	if strings.Contains(s, "unexpected end of JSON input") || strings.Contains(s, "invalid character") {
		return readErrBadJSON
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			return nil
		}
		if origin == a {
			return nil
		}
		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// deriveOriginPatternsFromAllowedOrigins keeps websocket.Accept's own origin
// check in agreement with the allowlist.
func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		if strings.TrimSpace(a) == "*" {
			return []string{"*"}
		}
		h := originHostOnly(a)
		if h == "" {
			continue
		}
		seen[h] = struct{}{}
		// Accept matches against host[:port]; allow any port for listed hosts.
		seen[h+":*"] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
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

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
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

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
