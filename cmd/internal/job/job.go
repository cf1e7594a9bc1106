package job

import (
	"context"
	"sync"
	"time"

	"github.com/bbang93/macro-api/cmd/internal/rail"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is absorbing.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Request is a validated booking request.
type Request struct {
	Departure      string
	Arrival        string
	Date           string // YYYYMMDD
	Time           string // HHMMSS
	Passengers     rail.Passengers
	SeatType       rail.SeatType
	SelectedTrains []int
	PreferWindow   bool
	UseStandby     bool
	TrainTypes     []rail.TrainType
}

// View is an immutable snapshot of a job, shaped for the API.
type View struct {
	ID             string            `json:"id"`
	Status         Status            `json:"status"`
	Departure      string            `json:"departure"`
	Arrival        string            `json:"arrival"`
	Date           string            `json:"date"`
	Time           string            `json:"time"`
	Passengers     rail.Passengers   `json:"passengers"`
	SeatType       rail.SeatType     `json:"seat_type"`
	SelectedTrains []int             `json:"selected_trains"`
	PreferWindow   bool              `json:"prefer_window"`
	UseStandby     bool              `json:"use_standby"`
	TrainTypes     []rail.TrainType  `json:"train_types"`
	AttemptCount   int               `json:"attempt_count"`
	CreatedAt      time.Time         `json:"created_at"`
	StartedAt      *time.Time        `json:"started_at"`
	CompletedAt    *time.Time        `json:"completed_at"`
	Result         *rail.Reservation `json:"result"`
	Error          *string           `json:"error"`
}

// Job is the engine's mutable record. All fields behind mu.
type Job struct {
	ID        string
	SessionID string
	Request   Request
	CreatedAt time.Time

	mu              sync.Mutex
	status          Status
	attempts        int
	startedAt       time.Time
	completedAt     time.Time
	result          *rail.Reservation
	errMsg          string
	cancelRequested bool
	cancel          context.CancelFunc
}

func newJob(id, sessionID string, req Request, now time.Time, cancel context.CancelFunc) *Job {
	return &Job{
		ID:        id,
		SessionID: sessionID,
		Request:   req,
		CreatedAt: now,
		status:    StatusPending,
		cancel:    cancel,
	}
}

// Status returns the current status.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *Job) cancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelRequested
}

// start moves pending -> running. False means the job was cancelled first.
func (j *Job) start(now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusPending {
		return false
	}
	j.status = StatusRunning
	j.startedAt = now
	return true
}

func (j *Job) nextAttempt() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attempts++
	return j.attempts
}

// finish performs the single transition into a terminal status.
// It returns false when the job was already terminal.
func (j *Job) finish(status Status, now time.Time, result *rail.Reservation, errMsg string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return false
	}
	j.status = status
	j.completedAt = now
	j.result = result
	j.errMsg = errMsg
	if status == StatusCancelled {
		j.cancelRequested = true
	}
	return true
}

// requestCancel marks the job cancelled unless it is already terminal.
func (j *Job) requestCancel(now time.Time) (context.CancelFunc, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return nil, false
	}
	j.cancelRequested = true
	j.status = StatusCancelled
	j.completedAt = now
	return j.cancel, true
}

// progress returns attempts and elapsed running time.
func (j *Job) progress(now time.Time) (int, float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.startedAt.IsZero() {
		return j.attempts, 0
	}
	end := now
	if !j.completedAt.IsZero() {
		end = j.completedAt
	}
	return j.attempts, end.Sub(j.startedAt).Seconds()
}

// View snapshots the job.
func (j *Job) View() View {
	j.mu.Lock()
	defer j.mu.Unlock()

	v := View{
		ID:             j.ID,
		Status:         j.status,
		Departure:      j.Request.Departure,
		Arrival:        j.Request.Arrival,
		Date:           j.Request.Date,
		Time:           j.Request.Time,
		Passengers:     j.Request.Passengers,
		SeatType:       j.Request.SeatType,
		SelectedTrains: append([]int(nil), j.Request.SelectedTrains...),
		PreferWindow:   j.Request.PreferWindow,
		UseStandby:     j.Request.UseStandby,
		TrainTypes:     append([]rail.TrainType(nil), j.Request.TrainTypes...),
		AttemptCount:   j.attempts,
		CreatedAt:      j.CreatedAt.UTC(),
	}
	if len(v.TrainTypes) == 0 {
		v.TrainTypes = nil
	}
	if !j.startedAt.IsZero() {
		t := j.startedAt.UTC()
		v.StartedAt = &t
	}
	if !j.completedAt.IsZero() {
		t := j.completedAt.UTC()
		v.CompletedAt = &t
	}
	if j.result != nil {
		r := *j.result
		v.Result = &r
	}
	if j.errMsg != "" {
		e := j.errMsg
		v.Error = &e
	}
	return v
}
