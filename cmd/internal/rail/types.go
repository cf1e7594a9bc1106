// Package rail defines the capability the service consumes from a rail
// reservation provider: login, search, reserve, standby, pay and cancel.
//
// Concrete provider adapters live in subpackages and are looked up by Kind
// through a Registry. Provider failures are reported as *Error values with a
// stable Code and an explicit Retryable flag; an expired provider login is
// reported as ErrReauthRequired.
package rail

import (
	"fmt"
	"strings"
)

// Kind identifies a rail provider.
type Kind string

const (
	KindSRT Kind = "SRT"
	KindKTX Kind = "KTX"
)

// ParseKind normalizes and validates a provider kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToUpper(strings.TrimSpace(s))) {
	case KindSRT:
		return KindSRT, nil
	case KindKTX:
		return KindKTX, nil
	default:
		return "", fmt.Errorf("unknown rail type: %q", s)
	}
}

// SeatType is the caller's seat preference with its fallback order.
type SeatType string

const (
	SeatGeneralFirst SeatType = "GENERAL_FIRST"
	SeatGeneralOnly  SeatType = "GENERAL_ONLY"
	SeatSpecialFirst SeatType = "SPECIAL_FIRST"
	SeatSpecialOnly  SeatType = "SPECIAL_ONLY"
)

// Valid reports whether s is a known seat policy.
func (s SeatType) Valid() bool {
	switch s {
	case SeatGeneralFirst, SeatGeneralOnly, SeatSpecialFirst, SeatSpecialOnly:
		return true
	}
	return false
}

// TrainType filters search results by service class. Only KTX honors it.
type TrainType string

const (
	TrainKTX           TrainType = "KTX"
	TrainKTXSancheon   TrainType = "KTX-산천"
	TrainITXSaemaeul   TrainType = "ITX-새마을"
	TrainITXCheongchun TrainType = "ITX-청춘"
	TrainMugunghwa     TrainType = "무궁화"
	TrainSaemaeul      TrainType = "새마을"
	TrainNuriro        TrainType = "누리로"
	TrainTonggeun      TrainType = "통근열차"
	TrainAirport       TrainType = "공항철도"
)

// Valid reports whether t is a known train type.
func (t TrainType) Valid() bool {
	switch t {
	case TrainKTX, TrainKTXSancheon, TrainITXSaemaeul, TrainITXCheongchun,
		TrainMugunghwa, TrainSaemaeul, TrainNuriro, TrainTonggeun, TrainAirport:
		return true
	}
	return false
}

// UserInfo is what the provider reports about the logged-in member.
type UserInfo struct {
	Name             string `json:"user_name"`
	MembershipNumber string `json:"membership_number"`
	Phone            string `json:"phone,omitempty"`
}

// Train is one search result row. Index is its position in the result list
// and is what callers reference in selected train indices.
type Train struct {
	Index           int    `json:"index"`
	TrainCode       string `json:"train_code"`
	TrainName       string `json:"train_name"`
	TrainNumber     string `json:"train_number"`
	DepStation      string `json:"dep_station"`
	ArrStation      string `json:"arr_station"`
	DepDate         string `json:"dep_date"`
	DepTime         string `json:"dep_time"`
	ArrTime         string `json:"arr_time"`
	DurationMinutes int    `json:"duration_minutes"`

	GeneralAvailable bool `json:"general_seat_available"`
	SpecialAvailable bool `json:"special_seat_available"`
	StandbyAvailable bool `json:"standby_available"`
}

// Ticket is one seat inside a reservation.
type Ticket struct {
	Car           string `json:"car"`
	Seat          string `json:"seat"`
	SeatType      string `json:"seat_type"`
	PassengerType string `json:"passenger_type"`
	Price         int    `json:"price"`
}

// Reservation is a normalized provider reservation.
type Reservation struct {
	ReservationNumber string   `json:"reservation_number"`
	TrainName         string   `json:"train_name"`
	TrainNumber       string   `json:"train_number"`
	DepStation        string   `json:"dep_station"`
	ArrStation        string   `json:"arr_station"`
	DepDate           string   `json:"dep_date"`
	DepTime           string   `json:"dep_time"`
	ArrTime           string   `json:"arr_time"`
	SeatCount         int      `json:"seat_count"`
	TotalCost         int      `json:"total_cost"`
	IsPaid            bool     `json:"is_paid"`
	IsWaiting         bool     `json:"is_waiting"`
	PaymentDeadline   string   `json:"payment_deadline,omitempty"`
	Tickets           []Ticket `json:"tickets"`
}

// SearchQuery describes an itinerary search.
type SearchQuery struct {
	Departure  string
	Arrival    string
	Date       string // YYYYMMDD
	Time       string // HHMMSS
	Passengers Passengers
	TrainTypes []TrainType
}

// ReserveRequest describes a reservation on a train from the latest search.
type ReserveRequest struct {
	Train        Train
	Passengers   Passengers
	SeatType     SeatType
	PreferWindow bool
}

// Card carries payment card details for PayWithCard. It is never logged.
type Card struct {
	Number      string
	Password    string // first two digits
	Validation  string // birth date (personal) or business number (corporate)
	Expire      string // YYMM
	Installment int
	Type        string // "J" personal, "S" corporate
}

// PaymentResult reports a completed card payment.
type PaymentResult struct {
	Success           bool   `json:"success"`
	ReservationNumber string `json:"reservation_number"`
	AmountPaid        int    `json:"amount_paid"`
	Message           string `json:"message"`
}
