package job

import "github.com/bbang93/macro-api/cmd/internal/rail"

// Event payloads. Field names are part of the event stream contract.

type startedData struct {
	Departure          string `json:"departure"`
	Arrival            string `json:"arrival"`
	Date               string `json:"date"`
	SelectedTrainCount int    `json:"selected_train_count"`
}

type seatAvailability struct {
	TrainIndex int  `json:"train_index"`
	General    bool `json:"general"`
	Special    bool `json:"special"`
	Standby    bool `json:"standby"`
}

type searchProgressData struct {
	AttemptCount   int                `json:"attempt_count"`
	ElapsedSeconds float64            `json:"elapsed_seconds"`
	FoundTrains    int                `json:"found_trains"`
	AvailableSeats []seatAvailability `json:"available_seats"`
	AvailableCount int                `json:"available_count"`
	Message        string             `json:"message"`
}

type reserveAttemptData struct {
	TrainIndex  int    `json:"train_index"`
	TrainName   string `json:"train_name"`
	TrainNumber string `json:"train_number"`
	DepTime     string `json:"dep_time"`
	SeatType    string `json:"seat_type"`
	IsStandby   bool   `json:"is_standby"`
}

type reserveFailedData struct {
	TrainIndex   int       `json:"train_index"`
	ErrorCode    rail.Code `json:"error_code"`
	ErrorMessage string    `json:"error_message"`
	Retryable    bool      `json:"retryable"`
	IsStandby    bool      `json:"is_standby"`
}

type completedSuccessData struct {
	Status         Status           `json:"status"`
	TotalAttempts  int              `json:"total_attempts"`
	ElapsedSeconds float64          `json:"elapsed_seconds"`
	Reservation    rail.Reservation `json:"reservation"`
	IsStandby      bool             `json:"is_standby"`
}

type completedFailureData struct {
	Status         Status  `json:"status"`
	TotalAttempts  int     `json:"total_attempts"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	FinalError     string  `json:"final_error"`
}

type cancelledData struct {
	Status Status `json:"status"`
}

type queueData struct {
	Status    string `json:"status"`
	WaitCount int    `json:"wait_count"`
	Message   string `json:"message"`
}
