// Package v1 defines the job event stream contract (v1).
//
// Server -> client frames are Events. Client -> server frames are Inbound
// messages. The package is shared by the server and tooling so the wire
// format stays authoritative in one place.
package v1

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event types (server -> client).
const (
	TypeJobStarted     = "job_started"
	TypeSearchProgress = "search_progress"
	TypeReserveAttempt = "reserve_attempt"
	TypeReserveSuccess = "reserve_success"
	TypeReserveFailed  = "reserve_failed"
	TypeJobCompleted   = "job_completed"
	TypeJobCancelled   = "job_cancelled"

	// Provider-side traffic queue.
	TypeNetfunnelWaiting = "netfunnel_waiting"
	TypeNetfunnelPassed  = "netfunnel_passed"

	TypeSessionExpired = "session_expired"
	TypeError          = "error"
	TypePong           = "pong"
)

// Inbound message types (client -> server).
const (
	TypePing      = "ping"
	TypeCancelJob = "cancel_job"
)

// Close codes used by the event stream.
const (
	// CloseInvalidSession is sent when the path session id is unknown or expired.
	CloseInvalidSession = 4001

	CloseReasonInvalidSession = "Invalid or expired session"
	CloseReasonSessionEnded   = "Session ended"
)

// Event is the canonical server -> client frame.
// JobID is null for session-scoped events (pong, session_expired).
type Event struct {
	Type      string    `json:"type"`
	JobID     *string   `json:"job_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// NewEvent builds an Event stamped with ts in UTC. An empty jobID is encoded as null.
func NewEvent(typ, jobID string, data any, ts time.Time) Event {
	var id *string
	if jobID != "" {
		id = &jobID
	}
	if data == nil {
		data = struct{}{}
	}
	return Event{
		Type:      typ,
		JobID:     id,
		Timestamp: ts.UTC(),
		Data:      data,
	}
}

// JobIDString returns the job id or "" for session-scoped events.
func (e Event) JobIDString() string {
	if e.JobID == nil {
		return ""
	}
	return *e.JobID
}

// Inbound is a client -> server frame.
type Inbound struct {
	Type      string `json:"type"`
	JobID     string `json:"job_id,omitempty"`
	Timestamp any    `json:"timestamp,omitempty"`
}

// Validate checks the minimal shape of an inbound frame.
func (m Inbound) Validate() error {
	switch strings.TrimSpace(m.Type) {
	case "":
		return errors.New("missing type")
	case TypePing:
		return nil
	case TypeCancelJob:
		if strings.TrimSpace(m.JobID) == "" {
			return errors.New("missing job_id")
		}
		return nil
	default:
		return fmt.Errorf("unsupported type: %s", m.Type)
	}
}

// PongData answers a ping, echoing the client timestamp when present.
type PongData struct {
	Timestamp any `json:"timestamp,omitempty"`
}

// ErrorData is the payload of TypeError events.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SessionExpiredData is the payload of TypeSessionExpired events.
type SessionExpiredData struct {
	Message string `json:"message"`
}
