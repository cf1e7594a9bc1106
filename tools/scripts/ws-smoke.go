// Package main provides a CI-friendly WebSocket smoke test for the job event stream.
//
// It validates:
//   - login over REST and the /ws/{session_id} handshake
//   - subprotocol selection
//   - ping -> pong with timestamp echo
//   - cancel_job for an unknown job -> error event
//   - optionally: job creation -> job_started, then cancel -> job_cancelled
//   - logout closes the stream
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "github.com/bbang93/macro-api/contracts/realtime/v1"

	"github.com/coder/websocket"
	"github.com/spf13/pflag"
)

const (
	defaultSubprotocol = "macro.events.v1"
	maxReadBytes       = 1 << 20 // 1MiB
)

type smokeClient struct {
	conn  *websocket.Conn
	inbox chan v1.Event
	errCh chan error
}

type options struct {
	baseURL  string
	origin   string
	rail     string
	userID   string
	password string

	departure string
	arrival   string
	date      string

	timeout time.Duration
	verbose bool
}

func main() {
	var o options

	set := pflag.NewFlagSet("ws-smoke", pflag.ExitOnError)
	set.StringVar(&o.baseURL, "url", "http://127.0.0.1:8000", "API base URL")
	set.StringVar(&o.origin, "origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
	set.StringVar(&o.rail, "rail", "SRT", "Rail provider kind (SRT|KTX)")
	set.StringVar(&o.userID, "user", os.Getenv("MACRO_SMOKE_USER"), "Provider user id (default $MACRO_SMOKE_USER)")
	set.StringVar(&o.password, "password", os.Getenv("MACRO_SMOKE_PASSWORD"), "Provider password (default $MACRO_SMOKE_PASSWORD)")
	set.StringVar(&o.departure, "dep", "수서", "Departure station for the optional job check")
	set.StringVar(&o.arrival, "arr", "부산", "Arrival station for the optional job check")
	set.StringVar(&o.date, "date", "", "Travel date YYYYMMDD; enables the job create/cancel check")
	set.DurationVar(&o.timeout, "timeout", 7*time.Second, "Per-step timeout")
	set.BoolVarP(&o.verbose, "verbose", "v", false, "Verbose output")
	_ = set.Parse(os.Args[1:])

	if err := validateBaseURL(o.baseURL); err != nil {
		fatalf("invalid --url: %v", err)
	}
	if err := validateOrigin(o.origin); err != nil {
		fatalf("invalid --origin: %v", err)
	}
	if o.userID == "" || o.password == "" {
		fatalf("--user and --password (or MACRO_SMOKE_USER/MACRO_SMOKE_PASSWORD) are required")
	}

	root := context.Background()
	base := strings.TrimRight(o.baseURL, "/")

	sessionID := mustLogin(root, base, o)
	if o.verbose {
		fmt.Printf("login ok: session=%s…\n", sessionID[:8])
	}

	c := mustConnect(root, wsURL(base, sessionID), o.origin, o.timeout)
	defer closeWS(c.conn)

	ts := time.Now().UnixMilli()
	mustWrite(root, c.conn, v1.Inbound{Type: v1.TypePing, Timestamp: ts}, o.timeout)
	pong := c.mustReadUntilType(root, v1.TypePong, o.timeout)
	var pd struct {
		Timestamp int64 `json:"timestamp"`
	}
	remarshal(pong.Data, &pd)
	if pd.Timestamp != ts {
		fatalf("pong timestamp mismatch: got=%d want=%d", pd.Timestamp, ts)
	}

	mustWrite(root, c.conn, v1.Inbound{Type: v1.TypeCancelJob, JobID: "does-not-exist"}, o.timeout)
	errEv := c.mustReadUntilType(root, v1.TypeError, o.timeout)
	var ed v1.ErrorData
	remarshal(errEv.Data, &ed)
	if ed.Code != "CANCEL_FAILED" {
		fatalf("cancel unknown job: code=%q want CANCEL_FAILED", ed.Code)
	}

	if o.date != "" {
		jobID := mustCreateJob(root, base, sessionID, o)
		started := c.mustReadUntilType(root, v1.TypeJobStarted, o.timeout)
		if started.JobIDString() != jobID {
			fatalf("job_started for %q, want %q", started.JobIDString(), jobID)
		}
		mustWrite(root, c.conn, v1.Inbound{Type: v1.TypeCancelJob, JobID: jobID}, o.timeout)
		cancelled := c.mustReadUntilType(root, v1.TypeJobCancelled, o.timeout)
		if cancelled.JobIDString() != jobID {
			fatalf("job_cancelled for %q, want %q", cancelled.JobIDString(), jobID)
		}
		if o.verbose {
			fmt.Printf("job ok: %s started and cancelled\n", jobID)
		}
	}

	mustLogout(root, base, sessionID, o.timeout)
	c.mustSeeClose(o.timeout)

	fmt.Printf("OK: rail=%s ping/pong cancel_job logout-close verified\n", o.rail)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func wsURL(base, sessionID string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	default:
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws/" + url.PathEscape(sessionID)
}

// ---- REST ----

func doJSON(parent context.Context, method, u, sessionID string, in, out any, timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			fatalf("marshal %s %s: %v", method, u, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		fatalf("request %s %s: %v", method, u, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionID != "" {
		req.Header.Set("X-Session-ID", sessionID)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, u, err)
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(res.Body, maxReadBytes))
	if res.StatusCode >= 300 {
		fatalf("%s %s: status=%d body=%s", method, u, res.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			fatalf("decode %s %s: %v", method, u, err)
		}
	}
	return res.StatusCode
}

func mustLogin(ctx context.Context, base string, o options) string {
	var out struct {
		SessionID string `json:"session_id"`
	}
	doJSON(ctx, http.MethodPost, base+"/auth/login", "", map[string]string{
		"rail_type": o.rail,
		"user_id":   o.userID,
		"password":  o.password,
	}, &out, o.timeout)
	if len(out.SessionID) < 8 {
		fatalf("login: missing session_id")
	}
	return out.SessionID
}

func mustCreateJob(ctx context.Context, base, sessionID string, o options) string {
	var out struct {
		ID string `json:"id"`
	}
	doJSON(ctx, http.MethodPost, base+"/jobs", sessionID, map[string]any{
		"departure":       o.departure,
		"arrival":         o.arrival,
		"date":            o.date,
		"selected_trains": []int{0},
	}, &out, o.timeout)
	if out.ID == "" {
		fatalf("create job: missing id")
	}
	return out.ID
}

func mustLogout(ctx context.Context, base, sessionID string, timeout time.Duration) {
	doJSON(ctx, http.MethodPost, base+"/auth/logout", sessionID, nil, nil, timeout)
}

// ---- WebSocket ----

func mustConnect(parent context.Context, u, origin string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, u, &websocket.DialOptions{
		Subprotocols: []string{defaultSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect: %v", err)
	}

	if resp != nil {
		if got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol")); got != "" && got != defaultSubprotocol {
			fatalf("subprotocol mismatch: got=%q want=%q", got, defaultSubprotocol)
		}
	}

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		conn:  conn,
		inbox: make(chan v1.Event, 512),
		errCh: make(chan error, 1),
	}
	go c.readLoop()
	return c
}

func (c *smokeClient) readLoop() {
	for {
		_, data, err := c.conn.Read(context.Background())
		if err != nil {
			c.errCh <- err
			return
		}
		var ev v1.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.errCh <- fmt.Errorf("decode event: %w", err)
			return
		}
		c.inbox <- ev
	}
}

// mustReadUntilType skips netfunnel and progress events until typ arrives.
func (c *smokeClient) mustReadUntilType(parent context.Context, typ string, timeout time.Duration) v1.Event {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %s", typ)
		case err := <-c.errCh:
			fatalf("stream closed while waiting for %s: %v", typ, err)
		case ev := <-c.inbox:
			if ev.Type == typ {
				return ev
			}
		}
	}
}

func (c *smokeClient) mustSeeClose(timeout time.Duration) {
	deadline := time.After(timeout)
	for {
		select {
		case <-deadline:
			fatalf("stream not closed after logout")
		case <-c.inbox:
		case err := <-c.errCh:
			if websocket.CloseStatus(err) == -1 {
				fatalf("stream ended without close frame: %v", err)
			}
			return
		}
	}
}

func mustWrite(parent context.Context, conn *websocket.Conn, msg v1.Inbound, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(msg)
	if err != nil {
		fatalf("marshal %s: %v", msg.Type, err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write %s: %v", msg.Type, err)
	}
}

func remarshal(in, out any) {
	b, err := json.Marshal(in)
	if err != nil {
		fatalf("remarshal: %v", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		fatalf("remarshal: %v", err)
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
