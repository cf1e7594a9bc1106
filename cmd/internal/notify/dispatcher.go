package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/bbang93/macro-api/cmd/internal/rail"
	"github.com/bbang93/macro-api/cmd/security/fingerprint"
)

// Notification kinds reported to the recorder.
const (
	KindReservation = "reservation"
	KindFailure     = "failure"
	KindTest        = "test"
)

// Test result messages shown to users.
const (
	msgNotConfigured = "텔레그램 알림이 설정되지 않았습니다."
	msgTestSent      = "테스트 알림이 전송되었습니다."
	msgTestFailed    = "알림 전송에 실패했습니다. 토큰과 채팅 ID를 확인해주세요."
)

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, botToken, chatID, text string) error
}

// Recorder receives delivery outcomes.
type Recorder interface {
	NotificationSent(kind string, ok bool)
}

type nopRecorder struct{}

func (nopRecorder) NotificationSent(string, bool) {}

// Dispatcher routes job outcomes to the owning session's Telegram chat.
type Dispatcher struct {
	log     *slog.Logger
	store   *Store
	sender  Sender
	rec     Recorder
	timeout time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.rec = r
		}
	}
}

// WithTimeout bounds each delivery.
func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(log *slog.Logger, store *Store, sender Sender, opts ...Option) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		log:     log,
		store:   store,
		sender:  sender,
		rec:     nopRecorder{},
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Store returns the settings store.
func (d *Dispatcher) Store() *Store { return d.store }

// ReservationSucceeded sends the success message if the session enabled notifications.
func (d *Dispatcher) ReservationSucceeded(ctx context.Context, sessionID string, r rail.Reservation, standby bool) {
	d.deliver(ctx, sessionID, KindReservation, reservationMessage(r, standby))
}

// JobFailed sends the failure message if the session enabled notifications.
func (d *Dispatcher) JobFailed(ctx context.Context, sessionID, departure, arrival, message string, attempts int) {
	d.deliver(ctx, sessionID, KindFailure, failureMessage(departure, arrival, message, attempts))
}

// SendTest sends the test message and reports a user-facing result.
func (d *Dispatcher) SendTest(ctx context.Context, sessionID string) (bool, string) {
	st := d.store.Get(sessionID)
	if !st.Enabled {
		return false, msgNotConfigured
	}
	if err := d.send(ctx, sessionID, st, KindTest, testMessage); err != nil {
		return false, msgTestFailed
	}
	return true, msgTestSent
}

// Forget drops the session's settings. Registered as a session destroy hook.
func (d *Dispatcher) Forget(sessionID string, _ string) {
	d.store.Forget(sessionID)
}

func (d *Dispatcher) deliver(ctx context.Context, sessionID, kind, text string) {
	st := d.store.Get(sessionID)
	if !st.Enabled {
		return
	}
	_ = d.send(ctx, sessionID, st, kind, text)
}

func (d *Dispatcher) send(ctx context.Context, sessionID string, st Settings, kind, text string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err := d.sender.Send(ctx, st.BotToken, st.ChatID, text)
	d.rec.NotificationSent(kind, err == nil)
	if err != nil {
		d.log.Warn("notify.send.fail", "session", fingerprint.Of(sessionID), "kind", kind, "err", err)
		return err
	}
	d.log.Info("notify.send.ok", "session", fingerprint.Of(sessionID), "kind", kind)
	return nil
}
