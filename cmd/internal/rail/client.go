package rail

import (
	"context"
)

// Client is an authenticated provider handle.
//
// Every method may return ErrReauthRequired (possibly wrapped) when the
// provider login has lapsed, or a *Error for classified provider failures.
type Client interface {
	SearchTrains(ctx context.Context, q SearchQuery) ([]Train, error)
	Reserve(ctx context.Context, req ReserveRequest) (Reservation, error)
	ReserveStandby(ctx context.Context, req ReserveRequest) (Reservation, error)
	Reservations(ctx context.Context) ([]Reservation, error)
	CancelReservation(ctx context.Context, reservationNumber string) error
	PayWithCard(ctx context.Context, reservationNumber string, card Card) (PaymentResult, error)
}

// LogoutClient is implemented by clients that can end the provider login.
type LogoutClient interface {
	Logout(ctx context.Context) error
}

// Connector performs the provider login for one Kind.
type Connector interface {
	Kind() Kind
	Login(ctx context.Context, userID, password string) (Client, UserInfo, error)
}

// QueueStatus is a provider traffic-queue update observed during a call.
type QueueStatus struct {
	Waiting int  // people ahead in the queue
	Passed  bool // the queue let this call through
}

type queueKey struct{}

// WithQueue returns a context whose provider calls report queue status on ch.
func WithQueue(ctx context.Context, ch chan<- QueueStatus) context.Context {
	return context.WithValue(ctx, queueKey{}, ch)
}

// ReportQueue delivers s to the channel attached by WithQueue.
// It never blocks: an update is dropped if the reader is behind.
func ReportQueue(ctx context.Context, s QueueStatus) {
	ch, _ := ctx.Value(queueKey{}).(chan<- QueueStatus)
	if ch == nil {
		return
	}
	select {
	case ch <- s:
	default:
	}
}
