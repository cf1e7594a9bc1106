package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bbang93/macro-api/cmd/internal/ids"
	"github.com/bbang93/macro-api/cmd/internal/rail"
	"github.com/bbang93/macro-api/cmd/internal/session"
	"github.com/bbang93/macro-api/cmd/security/fingerprint"
	v1 "github.com/bbang93/macro-api/contracts/realtime/v1"
)

// Reauthenticator replaces a session's provider client after its login lapsed.
type Reauthenticator interface {
	Reauthenticate(ctx context.Context, s *session.Session) (rail.Client, error)
}

// Emitter delivers job events to a session's observers.
type Emitter interface {
	Broadcast(sessionID, typ, jobID string, data any)
}

// Notifier sends outbound notifications. Failures must be handled inside.
type Notifier interface {
	ReservationSucceeded(ctx context.Context, sessionID string, r rail.Reservation, standby bool)
	JobFailed(ctx context.Context, sessionID, departure, arrival, message string, attempts int)
}

// Recorder receives job counts.
type Recorder interface {
	JobCreated()
	JobFinished(status string, d time.Duration)
	SearchAttempt()
	ReserveAttempt(outcome string)
}

type nopNotifier struct{}

func (nopNotifier) ReservationSucceeded(context.Context, string, rail.Reservation, bool) {}
func (nopNotifier) JobFailed(context.Context, string, string, string, string, int)       {}

type nopRecorder struct{}

func (nopRecorder) JobCreated()                       {}
func (nopRecorder) JobFinished(string, time.Duration) {}
func (nopRecorder) SearchAttempt()                    {}
func (nopRecorder) ReserveAttempt(string)             {}

// Engine owns every job in the process.
type Engine struct {
	log      *slog.Logger
	sessions Reauthenticator
	events   Emitter
	notifier Notifier
	rec      Recorder

	now   func() time.Time
	wait  func() time.Duration
	sleep func(ctx context.Context, d time.Duration) error

	mu        sync.RWMutex
	jobs      map[string]*Job
	bySession map[string][]string // creation order
	closed    bool

	wg sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier sets the outbound notifier.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.rec = r
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRetryWait overrides the inter-attempt wait distribution.
func WithRetryWait(wait func() time.Duration) Option {
	return func(e *Engine) {
		if wait != nil {
			e.wait = wait
		}
	}
}

// WithSleep overrides how the loop waits between attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// NewEngine constructs an Engine.
func NewEngine(log *slog.Logger, sessions Reauthenticator, events Emitter, opts ...Option) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		log:       log,
		sessions:  sessions,
		events:    events,
		notifier:  nopNotifier{},
		rec:       nopRecorder{},
		now:       time.Now,
		wait:      RetryWait,
		sleep:     sleepCtx,
		jobs:      make(map[string]*Job),
		bySession: make(map[string][]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Create registers a job under s and starts its loop. The returned view is pending.
func (e *Engine) Create(s *session.Session, req Request) (View, error) {
	now := e.now()
	id, err := ids.NewULID(now)
	if err != nil {
		return View{}, fmt.Errorf("job: id: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := newJob(id, s.ID, req, now, cancel)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		cancel()
		return View{}, ErrEngineClosed
	}
	e.jobs[id] = j
	e.bySession[s.ID] = append(e.bySession[s.ID], id)
	e.wg.Add(1)
	e.mu.Unlock()

	if !s.AttachJob(id, cancel) {
		// Session destroyed between lookup and attach.
		e.mu.Lock()
		e.removeLocked(s.ID, id)
		e.mu.Unlock()
		e.wg.Done()
		cancel()
		return View{}, session.ErrSessionExpired
	}

	view := j.View()
	e.rec.JobCreated()
	e.log.Info("job.create.ok", "job_id", id, "session", fingerprint.Of(s.ID), "trains", len(req.SelectedTrains))

	go e.run(ctx, j, s)
	return view, nil
}

// Get returns a job snapshot.
func (e *Engine) Get(id string) (View, bool) {
	j := e.lookup(id)
	if j == nil {
		return View{}, false
	}
	return j.View(), true
}

// GetForSession returns a job snapshot only if it belongs to sessionID.
func (e *Engine) GetForSession(sessionID, id string) (View, error) {
	j := e.lookup(id)
	if j == nil || j.SessionID != sessionID {
		return View{}, ErrNotFound
	}
	return j.View(), nil
}

// List returns the session's jobs in creation order.
func (e *Engine) List(sessionID string) []View {
	e.mu.RLock()
	list := make([]*Job, 0, len(e.bySession[sessionID]))
	for _, id := range e.bySession[sessionID] {
		if j, ok := e.jobs[id]; ok {
			list = append(list, j)
		}
	}
	e.mu.RUnlock()

	out := make([]View, 0, len(list))
	for _, j := range list {
		out = append(out, j.View())
	}
	return out
}

// Cancel stops a pending or running job. It returns false for unknown or
// terminal jobs and leaves them unchanged.
func (e *Engine) Cancel(id string) bool {
	j := e.lookup(id)
	if j == nil {
		return false
	}
	return e.cancel(j)
}

// CancelForSession cancels a job only if it belongs to sessionID.
func (e *Engine) CancelForSession(sessionID, id string) bool {
	j := e.lookup(id)
	if j == nil || j.SessionID != sessionID {
		return false
	}
	return e.cancel(j)
}

func (e *Engine) cancel(j *Job) bool {
	stop, ok := j.requestCancel(e.now())
	if !ok {
		return false
	}
	if stop != nil {
		stop()
	}
	e.events.Broadcast(j.SessionID, v1.TypeJobCancelled, j.ID, cancelledData{Status: StatusCancelled})
	e.log.Info("job.cancel.ok", "job_id", j.ID, "session", fingerprint.Of(j.SessionID))
	return true
}

// Forget drops every job of a destroyed session from the indexes.
func (e *Engine) Forget(sessionID string) {
	e.mu.Lock()
	jobIDs := e.bySession[sessionID]
	delete(e.bySession, sessionID)
	for _, id := range jobIDs {
		if j, ok := e.jobs[id]; ok {
			delete(e.jobs, id)
			j.cancel()
		}
	}
	e.mu.Unlock()
}

// ActiveCount returns the number of pending or running jobs.
func (e *Engine) ActiveCount() int {
	e.mu.RLock()
	list := make([]*Job, 0, len(e.jobs))
	for _, j := range e.jobs {
		list = append(list, j)
	}
	e.mu.RUnlock()

	n := 0
	for _, j := range list {
		if !j.Status().Terminal() {
			n++
		}
	}
	return n
}

// Close refuses new jobs, cancels running ones and waits for their
// goroutines until ctx is done.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	list := make([]*Job, 0, len(e.jobs))
	for _, j := range e.jobs {
		list = append(list, j)
	}
	e.mu.Unlock()

	for _, j := range list {
		j.cancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) lookup(id string) *Job {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.jobs[id]
}

func (e *Engine) removeLocked(sessionID, id string) {
	delete(e.jobs, id)
	list := e.bySession[sessionID]
	for i, v := range list {
		if v == id {
			e.bySession[sessionID] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(e.bySession[sessionID]) == 0 {
		delete(e.bySession, sessionID)
	}
}
