package job

import "github.com/bbang93/macro-api/cmd/internal/rail"

// Seat labels reported in reserve_attempt events.
const (
	seatGeneral = "general"
	seatSpecial = "special"
	seatStandby = "standby"
)

// decision is the outcome of applying the seat policy to one train.
type decision struct {
	reserve bool   // a direct seat is reservable
	standby bool   // fall back to a standby request
	seat    string // label for the attempt event
}

func (d decision) skip() bool { return !d.reserve && !d.standby }

// decide applies the seat policy. Standby is chosen only when no direct
// seat is reservable and the caller opted in.
func decide(t rail.Train, policy rail.SeatType, useStandby bool) decision {
	var order []string
	switch policy {
	case rail.SeatGeneralOnly:
		order = []string{seatGeneral}
	case rail.SeatSpecialOnly:
		order = []string{seatSpecial}
	case rail.SeatSpecialFirst:
		order = []string{seatSpecial, seatGeneral}
	default:
		order = []string{seatGeneral, seatSpecial}
	}

	for _, s := range order {
		if (s == seatGeneral && t.GeneralAvailable) || (s == seatSpecial && t.SpecialAvailable) {
			return decision{reserve: true, seat: s}
		}
	}
	if useStandby && t.StandbyAvailable {
		return decision{standby: true, seat: seatStandby}
	}
	return decision{}
}
