// Package railtest provides scriptable rail.Client and rail.Connector fakes for tests.
package railtest

import (
	"context"
	"errors"
	"sync"

	"github.com/bbang93/macro-api/cmd/internal/rail"
)

// Operation names used by Client.Calls.
const (
	OpSearch       = "search"
	OpReserve      = "reserve"
	OpStandby      = "standby"
	OpReservations = "reservations"
	OpCancel       = "cancel"
	OpPay          = "pay"
	OpLogout       = "logout"
)

// Client is a rail.Client whose behavior is set per operation.
// A nil func returns a zero value and no error.
type Client struct {
	SearchFn       func(ctx context.Context, q rail.SearchQuery) ([]rail.Train, error)
	ReserveFn      func(ctx context.Context, req rail.ReserveRequest) (rail.Reservation, error)
	StandbyFn      func(ctx context.Context, req rail.ReserveRequest) (rail.Reservation, error)
	ReservationsFn func(ctx context.Context) ([]rail.Reservation, error)
	CancelFn       func(ctx context.Context, number string) error
	PayFn          func(ctx context.Context, number string, card rail.Card) (rail.PaymentResult, error)
	LogoutFn       func(ctx context.Context) error

	mu    sync.Mutex
	calls map[string]int
}

var (
	_ rail.Client       = (*Client)(nil)
	_ rail.LogoutClient = (*Client)(nil)
)

func (c *Client) record(op string) {
	c.mu.Lock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[op]++
	c.mu.Unlock()
}

// Calls returns how many times op was invoked.
func (c *Client) Calls(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

func (c *Client) SearchTrains(ctx context.Context, q rail.SearchQuery) ([]rail.Train, error) {
	c.record(OpSearch)
	if c.SearchFn == nil {
		return nil, nil
	}
	return c.SearchFn(ctx, q)
}

func (c *Client) Reserve(ctx context.Context, req rail.ReserveRequest) (rail.Reservation, error) {
	c.record(OpReserve)
	if c.ReserveFn == nil {
		return rail.Reservation{}, nil
	}
	return c.ReserveFn(ctx, req)
}

func (c *Client) ReserveStandby(ctx context.Context, req rail.ReserveRequest) (rail.Reservation, error) {
	c.record(OpStandby)
	if c.StandbyFn == nil {
		return rail.Reservation{}, nil
	}
	return c.StandbyFn(ctx, req)
}

func (c *Client) Reservations(ctx context.Context) ([]rail.Reservation, error) {
	c.record(OpReservations)
	if c.ReservationsFn == nil {
		return nil, nil
	}
	return c.ReservationsFn(ctx)
}

func (c *Client) CancelReservation(ctx context.Context, number string) error {
	c.record(OpCancel)
	if c.CancelFn == nil {
		return nil
	}
	return c.CancelFn(ctx, number)
}

func (c *Client) PayWithCard(ctx context.Context, number string, card rail.Card) (rail.PaymentResult, error) {
	c.record(OpPay)
	if c.PayFn == nil {
		return rail.PaymentResult{Success: true, ReservationNumber: number}, nil
	}
	return c.PayFn(ctx, number, card)
}

func (c *Client) Logout(ctx context.Context) error {
	c.record(OpLogout)
	if c.LogoutFn == nil {
		return nil
	}
	return c.LogoutFn(ctx)
}

// ErrBadCredentials is the default rejection returned by Connector when
// Password does not match.
var ErrBadCredentials = errors.New("비밀번호가 일치하지 않습니다")

// Connector is a rail.Connector backed by a fixed credential pair.
//
// Login succeeds when (userID, password) matches UserID/Password (or when
// both are empty) and returns Next() as the client. LoginFn overrides all of it.
type Connector struct {
	K        rail.Kind
	UserID   string
	Password string
	Info     rail.UserInfo

	// Next returns the client for each successful login. Defaults to a fresh *Client.
	Next    func() rail.Client
	LoginFn func(ctx context.Context, userID, password string) (rail.Client, rail.UserInfo, error)

	mu     sync.Mutex
	logins int
}

var _ rail.Connector = (*Connector)(nil)

func (c *Connector) Kind() rail.Kind {
	if c.K == "" {
		return rail.KindSRT
	}
	return c.K
}

func (c *Connector) Login(ctx context.Context, userID, password string) (rail.Client, rail.UserInfo, error) {
	c.mu.Lock()
	c.logins++
	c.mu.Unlock()

	if c.LoginFn != nil {
		return c.LoginFn(ctx, userID, password)
	}
	if c.UserID != "" || c.Password != "" {
		if userID != c.UserID || password != c.Password {
			return nil, rail.UserInfo{}, ErrBadCredentials
		}
	}
	var cl rail.Client = &Client{}
	if c.Next != nil {
		cl = c.Next()
	}
	return cl, c.Info, nil
}

// Logins returns the number of Login calls.
func (c *Connector) Logins() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logins
}

// Trains builds n trains with the given availability for index i via avail(i).
func Trains(n int, avail func(i int) (general, special, standby bool)) []rail.Train {
	out := make([]rail.Train, n)
	for i := range out {
		g, s, sb := avail(i)
		out[i] = rail.Train{
			Index:            i,
			TrainCode:        "17",
			TrainName:        "SRT",
			TrainNumber:      "3" + string(rune('0'+i%10)) + "1",
			DepStation:       "수서",
			ArrStation:       "부산",
			DepDate:          "20260301",
			DepTime:          "080000",
			ArrTime:          "103000",
			DurationMinutes:  150,
			GeneralAvailable: g,
			SpecialAvailable: s,
			StandbyAvailable: sb,
		}
	}
	return out
}
