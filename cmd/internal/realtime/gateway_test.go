package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	v1 "github.com/bbang93/macro-api/contracts/realtime/v1"

	"github.com/coder/websocket"
)

type fakeSessions struct {
	mu        sync.Mutex
	live      map[string]bool
	refreshes int
}

func (f *fakeSessions) Refresh(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return f.live[id]
}

func (f *fakeSessions) Refreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

type fakeJobs struct {
	owned map[string]string // job -> session
}

func (f *fakeJobs) CancelForSession(sessionID, jobID string) bool {
	return f.owned[jobID] == sessionID
}

type wireEvent struct {
	Type      string          `json:"type"`
	JobID     *string         `json:"job_id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func startGateway(t *testing.T, sessions Sessions, jobs Jobs) (*Broadcaster, *httptest.Server) {
	t.Helper()
	t.Setenv("MACRO_WS_ORIGIN_REQUIRED", "false")
	t.Setenv("MACRO_WS_ALLOWED_ORIGINS", "http://localhost")

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	bc := NewBroadcaster(log)
	gw := NewGateway(log, bc, sessions, jobs)

	mux := http.NewServeMux()
	mux.Handle("GET /ws/{session_id}", gw)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return bc, ts
}

func dialWS(t *testing.T, baseHTTPURL, sessionID, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	u, err := url.Parse(baseHTTPURL)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws/" + sessionID

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return websocket.Dial(ctx, u.String(), &websocket.DialOptions{HTTPHeader: h})
}

func writeJSONWS(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("conn.Write: %v", err)
	}
}

func readEventWS(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, b, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("conn.Read: %v", err)
	}
	var ev wireEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	return ev
}

func waitForObservers(t *testing.T, bc *Broadcaster, sessionID string, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if bc.Count(sessionID) == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("observer count for %s never reached %d", sessionID, n)
}

func TestGateway_InvalidSessionClosed4001(t *testing.T) {
	_, ts := startGateway(t, &fakeSessions{live: map[string]bool{}}, &fakeJobs{})

	conn, _, err := dialWS(t, ts.URL, "unknown", "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err = conn.Read(ctx)

	var ce websocket.CloseError
	if !errors.As(err, &ce) {
		t.Fatalf("expected close error, got %v", err)
	}
	if int(ce.Code) != v1.CloseInvalidSession || ce.Reason != v1.CloseReasonInvalidSession {
		t.Fatalf("close = %d %q", ce.Code, ce.Reason)
	}
}

// endingSessions reports the session live for the first n refreshes only.
type endingSessions struct {
	mu sync.Mutex
	n  int
}

func (e *endingSessions) Refresh(string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.n--
	return e.n >= 0
}

func TestGateway_SessionEndedDuringSubscribe(t *testing.T) {
	bc, ts := startGateway(t, &endingSessions{n: 1}, &fakeJobs{})

	conn, _, err := dialWS(t, ts.URL, "s1", "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err = conn.Read(ctx)

	var ce websocket.CloseError
	if !errors.As(err, &ce) {
		t.Fatalf("expected close error, got %v", err)
	}
	if int(ce.Code) != v1.CloseInvalidSession {
		t.Fatalf("close = %d %q", ce.Code, ce.Reason)
	}
	waitForObservers(t, bc, "s1", 0)
}

func TestGateway_RejectsDisallowedOrigin(t *testing.T) {
	_, ts := startGateway(t, &fakeSessions{live: map[string]bool{"s1": true}}, &fakeJobs{})

	_, resp, err := dialWS(t, ts.URL, "s1", "https://evil.example")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp)
	}
}

func TestGateway_PingPongRefreshesSession(t *testing.T) {
	sessions := &fakeSessions{live: map[string]bool{"s1": true}}
	bc, ts := startGateway(t, sessions, &fakeJobs{})

	conn, _, err := dialWS(t, ts.URL, "s1", "http://localhost:5173")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	waitForObservers(t, bc, "s1", 1)

	before := sessions.Refreshes()
	writeJSONWS(t, conn, map[string]any{"type": "ping", "timestamp": 1700000000})

	ev := readEventWS(t, conn)
	if ev.Type != v1.TypePong || ev.JobID != nil {
		t.Fatalf("unexpected event: %+v", ev)
	}
	var pong struct {
		Timestamp float64 `json:"timestamp"`
	}
	if err := json.Unmarshal(ev.Data, &pong); err != nil || pong.Timestamp != 1700000000 {
		t.Fatalf("pong data = %s (%v)", ev.Data, err)
	}
	if sessions.Refreshes() <= before {
		t.Fatalf("inbound message did not refresh the session")
	}
}

func TestGateway_CancelJobOwnership(t *testing.T) {
	jobs := &fakeJobs{owned: map[string]string{"job-mine": "s1", "job-other": "s2"}}
	bc, ts := startGateway(t, &fakeSessions{live: map[string]bool{"s1": true}}, jobs)

	conn, _, err := dialWS(t, ts.URL, "s1", "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	waitForObservers(t, bc, "s1", 1)

	writeJSONWS(t, conn, map[string]any{"type": "cancel_job", "job_id": "job-other"})
	ev := readEventWS(t, conn)
	if ev.Type != v1.TypeError || ev.JobID == nil || *ev.JobID != "job-other" {
		t.Fatalf("expected error for foreign job, got %+v", ev)
	}

	// An owned cancel produces no reply; the job loop broadcasts job_cancelled itself.
	writeJSONWS(t, conn, map[string]any{"type": "cancel_job", "job_id": "job-mine"})
	writeJSONWS(t, conn, map[string]any{"type": "ping"})
	if ev := readEventWS(t, conn); ev.Type != v1.TypePong {
		t.Fatalf("expected pong after owned cancel, got %+v", ev)
	}
}

func TestGateway_BadFrames(t *testing.T) {
	bc, ts := startGateway(t, &fakeSessions{live: map[string]bool{"s1": true}}, &fakeJobs{})

	conn, _, err := dialWS(t, ts.URL, "s1", "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	waitForObservers(t, bc, "s1", 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte("{nope")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev := readEventWS(t, conn); ev.Type != v1.TypeError {
		t.Fatalf("expected error event for bad JSON, got %+v", ev)
	}

	writeJSONWS(t, conn, map[string]any{"type": "subscribe"})
	if ev := readEventWS(t, conn); ev.Type != v1.TypeError {
		t.Fatalf("expected error event for unsupported type, got %+v", ev)
	}
}

func TestGateway_SessionEndFlushesThenCloses(t *testing.T) {
	bc, ts := startGateway(t, &fakeSessions{live: map[string]bool{"s1": true}}, &fakeJobs{})

	conn, _, err := dialWS(t, ts.URL, "s1", "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()
	waitForObservers(t, bc, "s1", 1)

	bc.Broadcast("s1", v1.TypeJobStarted, "job-1", map[string]string{"status": "running"})
	bc.Broadcast("s1", v1.TypeSessionExpired, "", v1.SessionExpiredData{Message: "expired"})
	bc.CloseAll("s1", v1.CloseReasonSessionEnded)

	if ev := readEventWS(t, conn); ev.Type != v1.TypeJobStarted || ev.JobID == nil || *ev.JobID != "job-1" {
		t.Fatalf("unexpected first event: %+v", ev)
	}
	if ev := readEventWS(t, conn); ev.Type != v1.TypeSessionExpired || ev.JobID != nil {
		t.Fatalf("unexpected second event: %+v", ev)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err = conn.Read(ctx)
	var ce websocket.CloseError
	if !errors.As(err, &ce) {
		t.Fatalf("expected close error, got %v", err)
	}
	if ce.Code != websocket.StatusNormalClosure || ce.Reason != v1.CloseReasonSessionEnded {
		t.Fatalf("close = %d %q", ce.Code, ce.Reason)
	}
}

func TestEnforceOrigin(t *testing.T) {
	g := &Gateway{allowedOrigins: []string{"http://localhost", "https://app.example.com"}}

	tests := []struct {
		origin string
		ok     bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"https://app.example.com", true},
		{"https://evil.example.com", false},
	}
	for _, tc := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws/x", nil)
		if tc.origin != "" {
			r.Header.Set("Origin", tc.origin)
		}
		err := g.enforceOrigin(r)
		if (err == nil) != tc.ok {
			t.Fatalf("origin %q: err=%v want ok=%v", tc.origin, err, tc.ok)
		}
	}

	g.originRequired = true
	if err := g.enforceOrigin(httptest.NewRequest(http.MethodGet, "/ws/x", nil)); err == nil {
		t.Fatalf("missing origin must be rejected when required")
	}
}

func TestDeriveOriginPatterns(t *testing.T) {
	got := deriveOriginPatternsFromAllowedOrigins([]string{"http://LOCALHOST:3000", "https://app.example.com", ""})
	want := []string{"app.example.com", "app.example.com:*", "localhost", "localhost:*"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("patterns = %v, want %v", got, want)
	}
	if got := deriveOriginPatternsFromAllowedOrigins([]string{"*"}); len(got) != 1 || got[0] != "*" {
		t.Fatalf("wildcard patterns = %v", got)
	}
}
