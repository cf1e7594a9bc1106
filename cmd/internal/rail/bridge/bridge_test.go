package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bbang93/macro-api/cmd/internal/rail"
)

type fakeBridge struct {
	t *testing.T

	mu       sync.Mutex
	lastPath string
	lastBody map[string]any
	lastAuth string

	handler func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.lastPath = r.URL.Path
	f.lastAuth = r.Header.Get("Authorization")
	f.lastBody = nil
	if r.Body != nil {
		b, _ := io.ReadAll(r.Body)
		if len(b) > 0 {
			var m map[string]any
			_ = json.Unmarshal(b, &m)
			f.lastBody = m
		}
	}
	f.mu.Unlock()

	if r.URL.Path == "/login" {
		writeBridgeJSON(w, http.StatusOK, map[string]any{
			"token":     "tok-1",
			"user_info": map[string]any{"user_name": "홍길동", "membership_number": "1234"},
		})
		return
	}
	f.handler(w, r)
}

func (f *fakeBridge) snapshot() (string, map[string]any, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPath, f.lastBody, f.lastAuth
}

func writeBridgeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeBridgeError(w http.ResponseWriter, status int, msg string) {
	writeBridgeJSON(w, status, map[string]any{"error": map[string]any{"message": msg}})
}

func newTestClient(t *testing.T, kind rail.Kind, h func(w http.ResponseWriter, r *http.Request)) (*Client, *fakeBridge) {
	t.Helper()

	fb := &fakeBridge{t: t, handler: h}
	ts := httptest.NewServer(fb)
	t.Cleanup(ts.Close)

	conn, err := New(slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Kind: kind, BaseURL: ts.URL + "/"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cl, info, err := conn.Login(context.Background(), "user", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if info.Name != "홍길동" {
		t.Fatalf("user info not decoded: %+v", info)
	}
	return cl.(*Client), fb
}

func TestNew_Validates(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, Config{Kind: "ITX", BaseURL: "http://x"}); !errors.Is(err, rail.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if _, err := New(nil, Config{Kind: rail.KindSRT}); err == nil {
		t.Fatalf("expected missing base url error")
	}
}

func TestLogin_RejectionCarriesProviderMessage(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeBridgeError(w, http.StatusUnauthorized, "비밀번호 오류입니다")
	}))
	defer ts.Close()

	conn, err := New(nil, Config{Kind: rail.KindSRT, BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, _, err = conn.Login(context.Background(), "user", "bad")
	if err == nil || err.Error() != "비밀번호 오류입니다" {
		t.Fatalf("expected provider message, got %v", err)
	}
	if errors.Is(err, rail.ErrReauthRequired) {
		t.Fatalf("login rejection must not be a reauth condition")
	}
}

func TestSearch_KTXSendsFirstTrainTypeOnly(t *testing.T) {
	t.Parallel()

	cl, fb := newTestClient(t, rail.KindKTX, func(w http.ResponseWriter, _ *http.Request) {
		writeBridgeJSON(w, http.StatusOK, map[string]any{
			"trains": []map[string]any{
				{"train_number": "101", "dep_time": "233000", "arr_time": "011500"},
				{"train_number": "103", "dep_time": "080000", "arr_time": "103000", "general_seat_available": true},
			},
			"queue": []map[string]any{{"waiting": 12}, {"passed": true}},
		})
	})

	queue := make(chan rail.QueueStatus, 4)
	ctx := rail.WithQueue(context.Background(), queue)

	trains, err := cl.SearchTrains(ctx, rail.SearchQuery{
		Departure:  "서울",
		Arrival:    "부산",
		Date:       "20260301",
		Time:       "000000",
		Passengers: rail.Passengers{Adult: 2},
		TrainTypes: []rail.TrainType{rail.TrainKTX, rail.TrainMugunghwa},
	})
	if err != nil {
		t.Fatalf("SearchTrains: %v", err)
	}

	path, body, auth := fb.snapshot()
	if path != "/trains/search" || auth != "Bearer tok-1" {
		t.Fatalf("unexpected request path=%q auth=%q", path, auth)
	}
	types, _ := body["train_types"].([]any)
	if len(types) != 1 || types[0] != string(rail.TrainKTX) {
		t.Fatalf("expected single train type, got %v", body["train_types"])
	}

	if len(trains) != 2 || trains[1].Index != 1 || !trains[1].GeneralAvailable {
		t.Fatalf("unexpected trains: %+v", trains)
	}
	if trains[0].DurationMinutes != 105 {
		t.Fatalf("overnight duration=%d want 105", trains[0].DurationMinutes)
	}

	if got := <-queue; got.Waiting != 12 {
		t.Fatalf("queue[0]=%+v", got)
	}
	if got := <-queue; !got.Passed {
		t.Fatalf("queue[1]=%+v", got)
	}
}

func TestSearch_SRTIgnoresTrainTypesAndToddlers(t *testing.T) {
	t.Parallel()

	cl, fb := newTestClient(t, rail.KindSRT, func(w http.ResponseWriter, _ *http.Request) {
		writeBridgeJSON(w, http.StatusOK, map[string]any{"trains": []any{}})
	})

	_, err := cl.SearchTrains(context.Background(), rail.SearchQuery{
		Passengers: rail.Passengers{Adult: 1, Toddler: 1},
		TrainTypes: []rail.TrainType{rail.TrainKTX},
	})
	if err != nil {
		t.Fatalf("SearchTrains: %v", err)
	}

	_, body, _ := fb.snapshot()
	if _, ok := body["train_types"]; ok {
		t.Fatalf("SRT must not send train types: %v", body)
	}
	p, _ := body["passengers"].(map[string]any)
	if p["toddler"] != float64(0) || p["adult"] != float64(1) {
		t.Fatalf("unexpected passengers: %v", p)
	}
}

func TestUnauthorizedIsReauthRequired(t *testing.T) {
	t.Parallel()

	cl, _ := newTestClient(t, rail.KindSRT, func(w http.ResponseWriter, _ *http.Request) {
		writeBridgeError(w, http.StatusUnauthorized, "로그인이 필요합니다")
	})

	_, err := cl.SearchTrains(context.Background(), rail.SearchQuery{})
	if !errors.Is(err, rail.ErrReauthRequired) {
		t.Fatalf("expected ErrReauthRequired, got %v", err)
	}
	_, err = cl.Reserve(context.Background(), rail.ReserveRequest{})
	if !errors.Is(err, rail.ErrReauthRequired) {
		t.Fatalf("expected ErrReauthRequired, got %v", err)
	}
}

func TestSearch_FailuresKeepPolling(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		h         func(w http.ResponseWriter, r *http.Request)
		code      rail.Code
		retryable bool
	}{
		{
			name:      "bad gateway",
			h:         func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) },
			code:      rail.CodeSearchNoResults,
			retryable: true,
		},
		{
			name: "queue rejection",
			h: func(w http.ResponseWriter, _ *http.Request) {
				writeBridgeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": map[string]any{"message": "대기열 오류", "kind": "netfunnel"}})
			},
			code:      rail.CodeSearchNoResults,
			retryable: true,
		},
		{
			name:      "no trains",
			h:         func(w http.ResponseWriter, _ *http.Request) { writeBridgeError(w, http.StatusNotFound, "조회 결과가 없습니다") },
			code:      rail.CodeSearchNoResults,
			retryable: true,
		},
		{
			name:      "invalid station",
			h:         func(w http.ResponseWriter, _ *http.Request) { writeBridgeError(w, http.StatusBadRequest, "출발역을 확인하세요") },
			code:      rail.CodeSearchInvalidStation,
			retryable: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cl, _ := newTestClient(t, rail.KindSRT, tc.h)
			_, err := cl.SearchTrains(context.Background(), rail.SearchQuery{})
			re, ok := rail.AsError(err)
			if !ok || re.Code != tc.code || re.Retryable != tc.retryable {
				t.Fatalf("got %v, want code=%s retryable=%v", err, tc.code, tc.retryable)
			}
			if tc.retryable && re.Detail == "" {
				t.Fatalf("cause dropped from detail: %+v", re)
			}
		})
	}
}

func TestSearch_ClientTimeoutIsRetryable(t *testing.T) {
	t.Parallel()

	fb := &fakeBridge{t: t, handler: func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		writeBridgeJSON(w, http.StatusOK, map[string]any{"trains": []any{}})
	}}
	ts := httptest.NewServer(fb)
	t.Cleanup(ts.Close)

	conn, err := New(slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Kind: rail.KindSRT, BaseURL: ts.URL, Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cl, _, err := conn.Login(context.Background(), "user", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	_, err = cl.SearchTrains(context.Background(), rail.SearchQuery{})
	re, ok := rail.AsError(err)
	if !ok || re.Code != rail.CodeSearchNoResults || !re.Retryable {
		t.Fatalf("expected retryable no-results on timeout, got %v", err)
	}
}

func TestSearch_CallerCancelPassesThrough(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	cl, _ := newTestClient(t, rail.KindSRT, func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := cl.SearchTrains(ctx, rail.SearchQuery{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, ok := rail.AsError(err); ok {
		t.Fatalf("cancellation must not be classified: %v", err)
	}
}

func TestReserve_ClassifiesProviderMessages(t *testing.T) {
	t.Parallel()

	msg := "잔여석없음"
	cl, _ := newTestClient(t, rail.KindSRT, func(w http.ResponseWriter, _ *http.Request) {
		writeBridgeError(w, http.StatusConflict, msg)
	})

	_, err := cl.Reserve(context.Background(), rail.ReserveRequest{SeatType: rail.SeatGeneralFirst})
	re, ok := rail.AsError(err)
	if !ok || re.Code != rail.CodeSoldOut || !re.Retryable {
		t.Fatalf("expected retryable sold out, got %v", err)
	}
}

func TestReserve_ServerErrorIsFatal(t *testing.T) {
	t.Parallel()

	cl, _ := newTestClient(t, rail.KindSRT, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := cl.Reserve(context.Background(), rail.ReserveRequest{})
	re, ok := rail.AsError(err)
	if !ok || re.Code != rail.CodeUpstream || re.Retryable {
		t.Fatalf("expected fatal upstream error, got %v", err)
	}
}

func TestReserveStandby_PerProvider(t *testing.T) {
	t.Parallel()

	ok := func(w http.ResponseWriter, _ *http.Request) {
		writeBridgeJSON(w, http.StatusOK, map[string]any{"reservation": map[string]any{"reservation_number": "R1"}})
	}

	train := rail.Train{StandbyAvailable: true}

	ktx, kfb := newTestClient(t, rail.KindKTX, ok)
	res, err := ktx.ReserveStandby(context.Background(), rail.ReserveRequest{Train: train, PreferWindow: true})
	if err != nil {
		t.Fatalf("KTX ReserveStandby: %v", err)
	}
	path, body, _ := kfb.snapshot()
	if path != "/reservations" || body["try_waiting"] != true {
		t.Fatalf("KTX standby must use regular reserve with try_waiting: path=%q body=%v", path, body)
	}
	if _, has := body["prefer_window"]; has {
		t.Fatalf("KTX must not send window preference: %v", body)
	}
	if !res.IsWaiting || res.ReservationNumber != "R1" {
		t.Fatalf("unexpected KTX standby result: %+v", res)
	}

	srt, sfb := newTestClient(t, rail.KindSRT, ok)
	if _, err := srt.ReserveStandby(context.Background(), rail.ReserveRequest{Train: train, PreferWindow: true}); err != nil {
		t.Fatalf("SRT ReserveStandby: %v", err)
	}
	path, body, _ = sfb.snapshot()
	if path != "/reservations/standby" || body["prefer_window"] != true {
		t.Fatalf("unexpected SRT standby request: path=%q body=%v", path, body)
	}
}

func TestReserveStandby_UnavailableShortCircuits(t *testing.T) {
	t.Parallel()

	called := false
	cl, _ := newTestClient(t, rail.KindSRT, func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	_, err := cl.ReserveStandby(context.Background(), rail.ReserveRequest{Train: rail.Train{}})
	re, ok := rail.AsError(err)
	if !ok || re.Code != rail.CodeStandbyNotAvailable {
		t.Fatalf("expected STANDBY_NOT_AVAILABLE, got %v", err)
	}
	if called {
		t.Fatalf("bridge must not be called when standby is unavailable")
	}
}

func TestPayWithCard_StatusMapping(t *testing.T) {
	t.Parallel()

	status := http.StatusNotFound
	cl, _ := newTestClient(t, rail.KindKTX, func(w http.ResponseWriter, _ *http.Request) {
		writeBridgeError(w, status, "not found")
	})

	_, err := cl.PayWithCard(context.Background(), "R9", rail.Card{})
	if re, ok := rail.AsError(err); !ok || re.Code != rail.CodePaymentNotFound {
		t.Fatalf("expected PAYMENT_RESERVATION_NOT_FOUND, got %v", err)
	}
}

func TestDurationMinutes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		dep, arr string
		want     int
	}{
		{"080000", "103000", 150},
		{"233000", "001000", 40},
		{"bad", "103000", 0},
	}
	for _, tc := range cases {
		if got := durationMinutes(tc.dep, tc.arr); got != tc.want {
			t.Fatalf("durationMinutes(%s,%s)=%d want %d", tc.dep, tc.arr, got, tc.want)
		}
	}
}
