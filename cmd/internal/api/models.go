package api

import (
	"time"

	"github.com/bbang93/macro-api/cmd/internal/rail"
)

type loginRequest struct {
	RailType string `json:"rail_type"`
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

type loginResponse struct {
	SessionID        string    `json:"session_id"`
	ExpiresAt        time.Time `json:"expires_at"`
	RailType         rail.Kind `json:"rail_type"`
	UserName         *string   `json:"user_name"`
	MembershipNumber *string   `json:"membership_number"`
}

type sessionResponse struct {
	Valid     bool       `json:"valid"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	RailType  *rail.Kind `json:"rail_type,omitempty"`
}

type stationsResponse struct {
	RailType rail.Kind `json:"rail_type"`
	Stations []string  `json:"stations"`
}

type searchRequest struct {
	Departure  string           `json:"departure"`
	Arrival    string           `json:"arrival"`
	Date       string           `json:"date"`
	Time       string           `json:"time"`
	Passengers *rail.Passengers `json:"passengers"`
	TrainTypes []rail.TrainType `json:"train_types"`
}

type jobCreateRequest struct {
	Departure      string           `json:"departure"`
	Arrival        string           `json:"arrival"`
	Date           string           `json:"date"`
	Time           string           `json:"time"`
	Passengers     *rail.Passengers `json:"passengers"`
	SeatType       rail.SeatType    `json:"seat_type"`
	SelectedTrains []int            `json:"selected_trains"`
	PreferWindow   bool             `json:"prefer_window"`
	UseStandby     bool             `json:"use_standby"`
	TrainTypes     []rail.TrainType `json:"train_types"`
}

type paymentRequest struct {
	CardNumber      string `json:"card_number"`
	CardPassword    string `json:"card_password"`
	BirthOrBusiness string `json:"birth_or_business"`
	ExpireDate      string `json:"expire_date"`
	Installment     int    `json:"installment"`
	CardType        string `json:"card_type"`
}

type telegramRequest struct {
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

type notificationTestResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"active_sessions"`
	ActiveJobs     int    `json:"active_jobs"`
}
