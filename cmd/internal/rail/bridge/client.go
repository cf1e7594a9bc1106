package bridge

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/bbang93/macro-api/cmd/internal/rail"
)

// Client is an authenticated provider handle.
type Client struct {
	conn  *Connector
	token string
}

var (
	_ rail.Client       = (*Client)(nil)
	_ rail.LogoutClient = (*Client)(nil)
)

// SearchTrains implements rail.Client.
func (c *Client) SearchTrains(ctx context.Context, q rail.SearchQuery) ([]rail.Train, error) {
	req := searchRequest{
		Departure:  q.Departure,
		Arrival:    q.Arrival,
		Date:       q.Date,
		Time:       q.Time,
		Passengers: c.passengers(q.Passengers),
	}
	// KTX accepts a single train-type filter; SRT runs only one train type.
	if c.conn.kind == rail.KindKTX && len(q.TrainTypes) > 0 {
		req.TrainTypes = []string{string(q.TrainTypes[0])}
	}

	var out searchResponse
	err := c.conn.do(ctx, http.MethodPost, "/trains/search", c.token, req, &out)
	if err != nil {
		return nil, classifySearch(ctx, err)
	}
	reportQueue(ctx, out.Queue)

	for i := range out.Trains {
		out.Trains[i].Index = i
		if out.Trains[i].DurationMinutes == 0 {
			out.Trains[i].DurationMinutes = durationMinutes(out.Trains[i].DepTime, out.Trains[i].ArrTime)
		}
	}
	return out.Trains, nil
}

// Reserve implements rail.Client.
func (c *Client) Reserve(ctx context.Context, r rail.ReserveRequest) (rail.Reservation, error) {
	return c.reserve(ctx, "/reservations", r, false, rail.ClassifyReserve)
}

// ReserveStandby implements rail.Client. KTX has no standby endpoint; a
// regular reservation with try_waiting set places the waitlist request.
func (c *Client) ReserveStandby(ctx context.Context, r rail.ReserveRequest) (rail.Reservation, error) {
	if !r.Train.StandbyAvailable {
		return rail.Reservation{}, rail.NewError(rail.CodeStandbyNotAvailable, "", "")
	}
	if c.conn.kind == rail.KindKTX {
		res, err := c.reserve(ctx, "/reservations", r, true, rail.ClassifyStandby)
		res.IsWaiting = err == nil
		return res, err
	}
	return c.reserve(ctx, "/reservations/standby", r, false, rail.ClassifyStandby)
}

func (c *Client) reserve(ctx context.Context, path string, r rail.ReserveRequest, tryWaiting bool, by func(string) *rail.Error) (rail.Reservation, error) {
	req := reserveRequest{
		Train:      r.Train,
		Passengers: c.passengers(r.Passengers),
		SeatType:   string(r.SeatType),
		TryWaiting: tryWaiting,
	}
	if c.conn.kind == rail.KindSRT {
		req.PreferWindow = r.PreferWindow
	}

	var out reservationResponse
	if err := c.conn.do(ctx, http.MethodPost, path, c.token, req, &out); err != nil {
		return rail.Reservation{}, classify(err, by)
	}
	reportQueue(ctx, out.Queue)
	return out.Reservation, nil
}

// Reservations implements rail.Client.
func (c *Client) Reservations(ctx context.Context) ([]rail.Reservation, error) {
	var out reservationsResponse
	if err := c.conn.do(ctx, http.MethodGet, "/reservations", c.token, nil, &out); err != nil {
		return nil, classify(err, nil)
	}
	if out.Reservations == nil {
		out.Reservations = []rail.Reservation{}
	}
	return out.Reservations, nil
}

// CancelReservation implements rail.Client.
func (c *Client) CancelReservation(ctx context.Context, number string) error {
	err := c.conn.do(ctx, http.MethodPost, "/reservations/"+url.PathEscape(number)+"/cancel", c.token, nil, nil)
	return classify(err, func(msg string) *rail.Error {
		return rail.NewError(rail.CodeCancelFailed, "", msg)
	})
}

// PayWithCard implements rail.Client.
func (c *Client) PayWithCard(ctx context.Context, number string, card rail.Card) (rail.PaymentResult, error) {
	req := payRequest{
		CardNumber:  card.Number,
		Password:    card.Password,
		Validation:  card.Validation,
		Expire:      card.Expire,
		Installment: card.Installment,
		CardType:    card.Type,
	}

	var out rail.PaymentResult
	err := c.conn.do(ctx, http.MethodPost, "/reservations/"+url.PathEscape(number)+"/pay", c.token, req, &out)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			switch se.Status {
			case http.StatusNotFound:
				return rail.PaymentResult{}, rail.NewError(rail.CodePaymentNotFound, "예약번호 "+number+"를 찾을 수 없습니다.", "")
			case http.StatusConflict:
				return rail.PaymentResult{}, rail.NewError(rail.CodePaymentAlreadyPaid, "", "")
			}
		}
		return rail.PaymentResult{}, classify(err, rail.ClassifyPayment)
	}
	if out.ReservationNumber == "" {
		out.ReservationNumber = number
	}
	return out, nil
}

// Logout implements rail.LogoutClient.
func (c *Client) Logout(ctx context.Context) error {
	err := c.conn.do(ctx, http.MethodPost, "/logout", c.token, nil, nil)
	if errors.Is(err, rail.ErrReauthRequired) {
		return nil
	}
	return err
}

// passengers applies provider fare rules. SRT has no toddler fare.
func (c *Client) passengers(p rail.Passengers) rail.Passengers {
	if c.conn.kind == rail.KindSRT && p.Toddler > 0 {
		c.conn.log.Debug("rail.passengers.toddler_dropped", "toddler", p.Toddler)
		p.Toddler = 0
		if p.Total() == 0 {
			p.Adult = 1
		}
	}
	return p
}
