package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bbang93/macro-api/cmd/internal/rail"
)

const maxResponseBytes = 4 << 20

type wireError struct {
	Error struct {
		Message string `json:"message"`
		Kind    string `json:"kind,omitempty"`
	} `json:"error"`
}

type wireQueue struct {
	Waiting int  `json:"waiting"`
	Passed  bool `json:"passed"`
}

type loginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string        `json:"token"`
	UserInfo rail.UserInfo `json:"user_info"`
}

type searchRequest struct {
	Departure  string          `json:"departure"`
	Arrival    string          `json:"arrival"`
	Date       string          `json:"date"`
	Time       string          `json:"time"`
	Passengers rail.Passengers `json:"passengers"`
	TrainTypes []string        `json:"train_types,omitempty"`
}

type searchResponse struct {
	Trains []rail.Train `json:"trains"`
	Queue  []wireQueue  `json:"queue,omitempty"`
}

type reserveRequest struct {
	Train        rail.Train      `json:"train"`
	Passengers   rail.Passengers `json:"passengers"`
	SeatType     string          `json:"seat_type"`
	PreferWindow bool            `json:"prefer_window,omitempty"`
	TryWaiting   bool            `json:"try_waiting,omitempty"`
}

type reservationResponse struct {
	Reservation rail.Reservation `json:"reservation"`
	Queue       []wireQueue      `json:"queue,omitempty"`
}

type reservationsResponse struct {
	Reservations []rail.Reservation `json:"reservations"`
}

type payRequest struct {
	CardNumber  string `json:"card_number"`
	Password    string `json:"card_password"`
	Validation  string `json:"birth_or_business"`
	Expire      string `json:"expire_date"`
	Installment int    `json:"installment"`
	CardType    string `json:"card_type"`
}

// statusError is a non-2xx bridge response.
type statusError struct {
	Status  int
	Message string
	Kind    string
}

func (e *statusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("bridge: status %d", e.Status)
	}
	return e.Message
}

// do performs one JSON round trip. A 401 maps to rail.ErrReauthRequired.
func (c *Connector) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("bridge: encode: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("bridge: request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("bridge: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("bridge: read: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		return rail.ErrReauthRequired
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &statusError{Status: resp.StatusCode}
		var we wireError
		if json.Unmarshal(raw, &we) == nil {
			se.Message = strings.TrimSpace(we.Error.Message)
			se.Kind = we.Error.Kind
		}
		return se
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("bridge: decode: %w", err)
	}
	return nil
}

func reportQueue(ctx context.Context, q []wireQueue) {
	for _, s := range q {
		rail.ReportQueue(ctx, rail.QueueStatus{Waiting: s.Waiting, Passed: s.Passed})
	}
}

// classifySearch maps every search failure through rail.ClassifySearch, so
// bridge outages, queue errors and client timeouts read as "no results" and
// a polling job keeps going. Reauth and cancellation of ctx pass through.
func classifySearch(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, rail.ErrReauthRequired) {
		return err
	}
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return err
	}

	return rail.ClassifySearch(err.Error())
}

// classify turns a transport or status failure into the rail error model.
// Reauth and context errors pass through untouched.
func classify(err error, by func(string) *rail.Error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, rail.ErrReauthRequired) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var se *statusError
	if !errors.As(err, &se) {
		return rail.NewError(rail.CodeUpstream, "", err.Error())
	}
	switch {
	case se.Kind == "netfunnel":
		return rail.NewError(rail.CodeNetfunnel, "", se.Message)
	case se.Status >= 500:
		return rail.NewError(rail.CodeUpstream, "", se.Error())
	case se.Status == http.StatusNotFound && by == nil:
		return rail.NewError(rail.CodeTrainNotFound, "", se.Message)
	case by == nil:
		return rail.NewError(rail.CodeUpstream, "", se.Error())
	default:
		return by(se.Message)
	}
}
