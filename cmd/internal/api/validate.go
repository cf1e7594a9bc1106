package api

import (
	"regexp"
	"strings"

	"github.com/bbang93/macro-api/cmd/internal/job"
	"github.com/bbang93/macro-api/cmd/internal/rail"
)

const defaultTime = "000000"

var (
	reDate     = regexp.MustCompile(`^\d{8}$`)
	reTime     = regexp.MustCompile(`^\d{6}$`)
	reCard     = regexp.MustCompile(`^\d{15,16}$`)
	reCardPass = regexp.MustCompile(`^\d{2}$`)
	reExpire   = regexp.MustCompile(`^\d{4}$`)
)

func (req loginRequest) validate() (rail.Kind, error) {
	kind, err := rail.ParseKind(req.RailType)
	if err != nil {
		return "", invalid("rail_type", "rail_type must be SRT or KTX")
	}
	if strings.TrimSpace(req.UserID) == "" {
		return "", invalid("user_id", "user_id is required")
	}
	if req.Password == "" {
		return "", invalid("password", "password is required")
	}
	return kind, nil
}

// itinerary holds the fields shared by search and job requests.
type itinerary struct {
	departure, arrival, date, time string
	passengers                     *rail.Passengers
	trainTypes                     []rail.TrainType
}

func (it itinerary) normalize() (rail.SearchQuery, error) {
	q := rail.SearchQuery{
		Departure:  strings.TrimSpace(it.departure),
		Arrival:    strings.TrimSpace(it.arrival),
		Date:       strings.TrimSpace(it.date),
		Time:       strings.TrimSpace(it.time),
		TrainTypes: it.trainTypes,
	}
	if q.Departure == "" {
		return q, invalid("departure", "departure is required")
	}
	if q.Arrival == "" {
		return q, invalid("arrival", "arrival is required")
	}
	if !reDate.MatchString(q.Date) {
		return q, invalid("date", "date must be YYYYMMDD")
	}
	if q.Time == "" {
		q.Time = defaultTime
	}
	if !reTime.MatchString(q.Time) {
		return q, invalid("time", "time must be HHMMSS")
	}

	q.Passengers = rail.Passengers{Adult: 1}
	if it.passengers != nil {
		q.Passengers = *it.passengers
	}
	if err := q.Passengers.Validate(); err != nil {
		return q, invalid("passengers", "%s", strings.TrimPrefix(err.Error(), rail.ErrPassengers.Error()+": "))
	}

	for _, t := range q.TrainTypes {
		if !t.Valid() {
			return q, invalid("train_types", "unknown train type %q", t)
		}
	}
	return q, nil
}

func (req searchRequest) query() (rail.SearchQuery, error) {
	return itinerary{
		departure:  req.Departure,
		arrival:    req.Arrival,
		date:       req.Date,
		time:       req.Time,
		passengers: req.Passengers,
		trainTypes: req.TrainTypes,
	}.normalize()
}

func (req jobCreateRequest) toJob() (job.Request, error) {
	q, err := itinerary{
		departure:  req.Departure,
		arrival:    req.Arrival,
		date:       req.Date,
		time:       req.Time,
		passengers: req.Passengers,
		trainTypes: req.TrainTypes,
	}.normalize()
	if err != nil {
		return job.Request{}, err
	}

	seat := req.SeatType
	if seat == "" {
		seat = rail.SeatGeneralFirst
	}
	if !seat.Valid() {
		return job.Request{}, invalid("seat_type", "unknown seat type %q", seat)
	}
	if len(req.SelectedTrains) == 0 {
		return job.Request{}, invalid("selected_trains", "select at least one train")
	}
	for _, idx := range req.SelectedTrains {
		if idx < 0 {
			return job.Request{}, invalid("selected_trains", "train index must not be negative")
		}
	}

	return job.Request{
		Departure:      q.Departure,
		Arrival:        q.Arrival,
		Date:           q.Date,
		Time:           q.Time,
		Passengers:     q.Passengers,
		SeatType:       seat,
		SelectedTrains: append([]int(nil), req.SelectedTrains...),
		PreferWindow:   req.PreferWindow,
		UseStandby:     req.UseStandby,
		TrainTypes:     q.TrainTypes,
	}, nil
}

func (req paymentRequest) card() (rail.Card, error) {
	c := rail.Card{
		Number:      strings.TrimSpace(req.CardNumber),
		Password:    strings.TrimSpace(req.CardPassword),
		Validation:  strings.TrimSpace(req.BirthOrBusiness),
		Expire:      strings.TrimSpace(req.ExpireDate),
		Installment: req.Installment,
		Type:        strings.TrimSpace(req.CardType),
	}
	if c.Type == "" {
		c.Type = "J"
	}

	switch {
	case !reCard.MatchString(c.Number):
		return c, invalid("card_number", "card number must be 15 or 16 digits")
	case !reCardPass.MatchString(c.Password):
		return c, invalid("card_password", "card password must be the first 2 digits")
	case len(c.Validation) < 6 || len(c.Validation) > 10:
		return c, invalid("birth_or_business", "birth date or business number must be 6 to 10 characters")
	case !reExpire.MatchString(c.Expire):
		return c, invalid("expire_date", "expire date must be YYMM")
	case c.Installment < 0 || c.Installment > 24:
		return c, invalid("installment", "installment must be between 0 and 24")
	case c.Type != "J" && c.Type != "S":
		return c, invalid("card_type", "card type must be J or S")
	}
	return c, nil
}

func (req telegramRequest) validate() error {
	if strings.TrimSpace(req.BotToken) == "" {
		return invalid("bot_token", "bot_token is required")
	}
	if strings.TrimSpace(req.ChatID) == "" {
		return invalid("chat_id", "chat_id is required")
	}
	return nil
}
