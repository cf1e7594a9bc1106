package bridge

import "strconv"

// durationMinutes computes travel time from HHMMSS strings, wrapping past midnight.
func durationMinutes(dep, arr string) int {
	d, ok1 := minutesOfDay(dep)
	a, ok2 := minutesOfDay(arr)
	if !ok1 || !ok2 {
		return 0
	}
	if a < d {
		a += 24 * 60
	}
	return a - d
}

func minutesOfDay(hhmmss string) (int, bool) {
	if len(hhmmss) < 4 {
		return 0, false
	}
	h, err := strconv.Atoi(hhmmss[:2])
	if err != nil {
		return 0, false
	}
	m, err := strconv.Atoi(hhmmss[2:4])
	if err != nil {
		return 0, false
	}
	return h*60 + m, true
}
