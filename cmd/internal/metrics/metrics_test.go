package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestMetrics_RecordersExport(t *testing.T) {
	t.Parallel()

	m := New()
	m.SessionCreated("SRT")
	m.SessionDestroyed("expired")
	m.Reauthenticated(false)
	m.EventDelivered("search_progress", 3, 1)
	m.JobCreated()
	m.JobFinished("success", 90*time.Second)
	m.SearchAttempt()
	m.SearchAttempt()
	m.ReserveAttempt("retryable")
	m.NotificationSent("test", true)
	m.HTTPRequest(http.MethodPost, http.StatusCreated, 20*time.Millisecond)

	out := scrape(t, m)
	for _, want := range []string{
		`macro_session_created_total{rail="SRT"} 1`,
		`macro_session_destroyed_total{reason="expired"} 1`,
		`macro_session_reauth_total{result="fail"} 1`,
		`macro_ws_events_delivered_total{type="search_progress"} 3`,
		`macro_ws_events_dropped_total{type="search_progress"} 1`,
		`macro_job_created_total 1`,
		`macro_job_finished_total{status="success"} 1`,
		`macro_job_duration_seconds_count{status="success"} 1`,
		`macro_job_search_attempts_total 2`,
		`macro_job_reserve_attempts_total{outcome="retryable"} 1`,
		`macro_notify_sent_total{kind="test",result="ok"} 1`,
		`macro_http_requests_total{code="201",method="POST"} 1`,
		`go_goroutines`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("scrape missing %q", want)
		}
	}
}

func TestMetrics_Gauge(t *testing.T) {
	t.Parallel()

	m := New()
	n := 4
	m.Gauge("session", "active", "Live sessions.", func() float64 { return float64(n) })

	if out := scrape(t, m); !strings.Contains(out, "macro_session_active 4") {
		t.Fatalf("gauge missing:\n%s", out)
	}
}

func TestMetrics_ZeroDeliveriesSkipLabels(t *testing.T) {
	t.Parallel()

	m := New()
	m.EventDelivered("pong", 0, 0)

	if out := scrape(t, m); strings.Contains(out, `type="pong"`) {
		t.Fatalf("empty delivery must not create a series")
	}
}
