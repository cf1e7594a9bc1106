package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bbang93/macro-api/cmd/security/fingerprint"
	v1 "github.com/bbang93/macro-api/contracts/realtime/v1"
)

// closeReasonSlow is used when an observer's queue overflows.
const closeReasonSlow = "Event queue overflow"

// Recorder receives delivery counts.
type Recorder interface {
	EventDelivered(typ string, delivered, dropped int)
}

type nopRecorder struct{}

func (nopRecorder) EventDelivered(string, int, int) {}

// Broadcaster fans job events out to every observer of a session.
//
// Delivery never blocks: an observer whose queue is full is pruned and
// closed so one slow reader cannot stall a job loop.
type Broadcaster struct {
	log *slog.Logger
	rec Recorder
	now func() time.Time

	mu        sync.RWMutex
	observers map[string]map[*Observer]struct{}
}

// BroadcasterOption configures a Broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithRecorder sets the delivery recorder.
func WithRecorder(rec Recorder) BroadcasterOption {
	return func(b *Broadcaster) {
		if rec != nil {
			b.rec = rec
		}
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) BroadcasterOption {
	return func(b *Broadcaster) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBroadcaster constructs a Broadcaster.
func NewBroadcaster(log *slog.Logger, opts ...BroadcasterOption) *Broadcaster {
	if log == nil {
		log = slog.Default()
	}
	b := &Broadcaster{
		log:       log,
		rec:       nopRecorder{},
		now:       time.Now,
		observers: make(map[string]map[*Observer]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Subscribe adds o to the session's observer set.
func (b *Broadcaster) Subscribe(sessionID string, o *Observer) {
	if sessionID == "" || o == nil {
		return
	}

	b.mu.Lock()
	set, ok := b.observers[sessionID]
	if !ok {
		set = make(map[*Observer]struct{})
		b.observers[sessionID] = set
	}
	set[o] = struct{}{}
	n := len(set)
	b.mu.Unlock()

	b.log.Info("ws.observer.join", "session", fingerprint.Of(sessionID), "observers", n)
}

// Unsubscribe removes o. It does not close it.
func (b *Broadcaster) Unsubscribe(sessionID string, o *Observer) {
	if sessionID == "" || o == nil {
		return
	}

	b.mu.Lock()
	if set, ok := b.observers[sessionID]; ok {
		delete(set, o)
		if len(set) == 0 {
			delete(b.observers, sessionID)
		}
	}
	b.mu.Unlock()

	b.log.Info("ws.observer.leave", "session", fingerprint.Of(sessionID))
}

// Broadcast sends one event to every observer of sessionID.
// An empty jobID is sent as null.
func (b *Broadcaster) Broadcast(sessionID, typ, jobID string, data any) {
	b.mu.RLock()
	targets := make([]*Observer, 0, len(b.observers[sessionID]))
	for o := range b.observers[sessionID] {
		targets = append(targets, o)
	}
	b.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	ev := v1.NewEvent(typ, jobID, data, b.now())

	var failed []*Observer
	for _, o := range targets {
		if !o.offer(ev) {
			failed = append(failed, o)
		}
	}
	b.rec.EventDelivered(typ, len(targets)-len(failed), len(failed))

	if len(failed) == 0 {
		return
	}

	b.mu.Lock()
	if set, ok := b.observers[sessionID]; ok {
		for _, o := range failed {
			delete(set, o)
		}
		if len(set) == 0 {
			delete(b.observers, sessionID)
		}
	}
	b.mu.Unlock()

	for _, o := range failed {
		o.Close(closeReasonSlow)
	}
	b.log.Warn("ws.broadcast.drop", "session", fingerprint.Of(sessionID), "type", typ, "pruned", len(failed))
}

// SendTo delivers one event to a single observer.
func (b *Broadcaster) SendTo(o *Observer, typ, jobID string, data any) bool {
	if o == nil {
		return false
	}
	if !o.offer(v1.NewEvent(typ, jobID, data, b.now())) {
		b.rec.EventDelivered(typ, 0, 1)
		b.log.Warn("ws.send.drop", "session", fingerprint.Of(o.SessionID), "type", typ)
		return false
	}
	b.rec.EventDelivered(typ, 1, 0)
	return true
}

// CloseAll removes and closes every observer of sessionID.
func (b *Broadcaster) CloseAll(sessionID, reason string) {
	b.mu.Lock()
	set := b.observers[sessionID]
	delete(b.observers, sessionID)
	b.mu.Unlock()

	for o := range set {
		o.Close(reason)
	}
	if len(set) > 0 {
		b.log.Info("ws.observer.close_all", "session", fingerprint.Of(sessionID), "observers", len(set), "reason", reason)
	}
}

// Count returns the number of observers for sessionID.
func (b *Broadcaster) Count(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.observers[sessionID])
}

// TotalCount returns the number of observers across all sessions.
func (b *Broadcaster) TotalCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, set := range b.observers {
		n += len(set)
	}
	return n
}
