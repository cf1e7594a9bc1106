package realtime

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	v1 "github.com/bbang93/macro-api/contracts/realtime/v1"
)

func newTestBroadcaster() *Broadcaster {
	fixed := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	return NewBroadcaster(slog.New(slog.NewTextHandler(io.Discard, nil)), WithClock(func() time.Time { return fixed }))
}

func TestBroadcast_FansOutPerSession(t *testing.T) {
	t.Parallel()

	b := newTestBroadcaster()
	a1 := NewObserver("s1", 4)
	a2 := NewObserver("s1", 4)
	other := NewObserver("s2", 4)
	b.Subscribe("s1", a1)
	b.Subscribe("s1", a2)
	b.Subscribe("s2", other)

	b.Broadcast("s1", v1.TypeJobStarted, "job-1", map[string]string{"status": "running"})

	for _, o := range []*Observer{a1, a2} {
		select {
		case ev := <-o.Send:
			if ev.Type != v1.TypeJobStarted || ev.JobIDString() != "job-1" {
				t.Fatalf("unexpected event: %+v", ev)
			}
		default:
			t.Fatalf("observer did not receive the event")
		}
	}
	select {
	case ev := <-other.Send:
		t.Fatalf("other session received %+v", ev)
	default:
	}
}

func TestBroadcast_NoObserversIsNoop(t *testing.T) {
	t.Parallel()

	b := newTestBroadcaster()
	b.Broadcast("nobody", v1.TypeJobStarted, "job-1", nil)
	if b.TotalCount() != 0 {
		t.Fatalf("expected no observers")
	}
}

func TestBroadcast_PrunesFullObserver(t *testing.T) {
	t.Parallel()

	b := newTestBroadcaster()
	slow := NewObserver("s1", 1)
	fast := NewObserver("s1", 8)
	b.Subscribe("s1", slow)
	b.Subscribe("s1", fast)

	b.Broadcast("s1", v1.TypeSearchProgress, "job-1", nil)
	b.Broadcast("s1", v1.TypeSearchProgress, "job-1", nil)

	select {
	case <-slow.Done():
	default:
		t.Fatalf("slow observer was not closed")
	}
	if slow.CloseReason() != closeReasonSlow {
		t.Fatalf("close reason = %q", slow.CloseReason())
	}
	if got := b.Count("s1"); got != 1 {
		t.Fatalf("observers after prune = %d, want 1", got)
	}
	if len(fast.Send) != 2 {
		t.Fatalf("fast observer got %d events, want 2", len(fast.Send))
	}
}

func TestCloseAll_ClosesWithReason(t *testing.T) {
	t.Parallel()

	b := newTestBroadcaster()
	o := NewObserver("s1", 4)
	b.Subscribe("s1", o)

	b.Broadcast("s1", v1.TypeSessionExpired, "", v1.SessionExpiredData{Message: "bye"})
	b.CloseAll("s1", v1.CloseReasonSessionEnded)

	if b.Count("s1") != 0 {
		t.Fatalf("observers remain after CloseAll")
	}
	if o.CloseReason() != v1.CloseReasonSessionEnded {
		t.Fatalf("close reason = %q", o.CloseReason())
	}

	// Events queued before the close stay readable for the writer to flush.
	ev := <-o.Send
	if ev.Type != v1.TypeSessionExpired || ev.JobID != nil {
		t.Fatalf("unexpected event: %+v", ev)
	}

	// Broadcast after close must not deliver.
	b.Broadcast("s1", v1.TypeJobStarted, "job-1", nil)
	if len(o.Send) != 0 {
		t.Fatalf("closed observer received an event")
	}
}

func TestSendTo(t *testing.T) {
	t.Parallel()

	b := newTestBroadcaster()
	o := NewObserver("s1", 1)

	if !b.SendTo(o, v1.TypePong, "", v1.PongData{Timestamp: 42}) {
		t.Fatalf("SendTo on empty queue failed")
	}
	if b.SendTo(o, v1.TypePong, "", nil) {
		t.Fatalf("SendTo on full queue must fail")
	}
	o.Close("x")
	<-o.Send
	if b.SendTo(o, v1.TypePong, "", nil) {
		t.Fatalf("SendTo on closed observer must fail")
	}
}

func TestSendTo_LogsDrop(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	b := NewBroadcaster(slog.New(slog.NewTextHandler(&buf, nil)))
	o := NewObserver("s1", 1)

	b.SendTo(o, v1.TypePong, "", nil)
	if strings.Contains(buf.String(), "ws.send.drop") {
		t.Fatalf("delivered event logged as drop: %s", buf.String())
	}
	if b.SendTo(o, v1.TypeError, "", nil) {
		t.Fatalf("SendTo on full queue must fail")
	}
	out := buf.String()
	if !strings.Contains(out, "ws.send.drop") || !strings.Contains(out, "type="+v1.TypeError) {
		t.Fatalf("drop not logged: %s", out)
	}
	if strings.Contains(out, "s1") {
		t.Fatalf("raw session id logged: %s", out)
	}
}

func TestUnsubscribe(t *testing.T) {
	t.Parallel()

	b := newTestBroadcaster()
	o := NewObserver("s1", 1)
	b.Subscribe("s1", o)
	b.Unsubscribe("s1", o)
	b.Unsubscribe("s1", o)

	if b.Count("s1") != 0 || b.TotalCount() != 0 {
		t.Fatalf("observer still registered")
	}
	select {
	case <-o.Done():
		t.Fatalf("Unsubscribe must not close the observer")
	default:
	}
}
