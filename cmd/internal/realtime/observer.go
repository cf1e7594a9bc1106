package realtime

import (
	"sync"

	v1 "github.com/bbang93/macro-api/contracts/realtime/v1"
)

// Observer is one connected event stream consumer.
//
// Send is never closed by the server so concurrent broadcasters cannot panic;
// done signals the connection goroutines to stop. Close is idempotent.
type Observer struct {
	SessionID string
	Send      chan v1.Event

	done      chan struct{}
	closeOnce sync.Once
	reason    string
}

// NewObserver constructs an Observer with a bounded send queue.
func NewObserver(sessionID string, sendQueueSize int) *Observer {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Observer{
		SessionID: sessionID,
		Send:      make(chan v1.Event, sendQueueSize),
		done:      make(chan struct{}),
	}
}

// Done returns a channel that is closed when the observer is shutting down.
func (o *Observer) Done() <-chan struct{} {
	if o == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return o.done
}

// Close signals shutdown with a close reason. Only the first reason is kept.
func (o *Observer) Close(reason string) {
	if o == nil {
		return
	}
	o.closeOnce.Do(func() {
		o.reason = reason
		close(o.done)
	})
}

// CloseReason returns the reason passed to the first Close. Valid after Done is closed.
func (o *Observer) CloseReason() string {
	select {
	case <-o.Done():
		return o.reason
	default:
		return ""
	}
}

// offer enqueues ev without blocking.
func (o *Observer) offer(ev v1.Event) bool {
	select {
	case <-o.done:
		return false
	default:
	}
	select {
	case o.Send <- ev:
		return true
	default:
		return false
	}
}
