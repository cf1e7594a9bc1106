package rail

import (
	"errors"
	"fmt"
)

const (
	// MaxPerCategory bounds each passenger bucket.
	MaxPerCategory = 9
	// MaxPassengers is the provider-imposed limit across all buckets.
	MaxPassengers = 9
)

// ErrPassengers is the sentinel behind all passenger validation failures.
var ErrPassengers = errors.New("invalid passenger count")

// Passengers is a per-category passenger breakdown.
type Passengers struct {
	Adult        int `json:"adult"`
	Child        int `json:"child"`
	Senior       int `json:"senior"`
	Disability13 int `json:"disability_1_3"`
	Disability46 int `json:"disability_4_6"`
	Toddler      int `json:"toddler"`
}

// Total returns the passenger count across all buckets.
func (p Passengers) Total() int {
	return p.Adult + p.Child + p.Senior + p.Disability13 + p.Disability46 + p.Toddler
}

// Validate enforces per-bucket and total bounds.
func (p Passengers) Validate() error {
	buckets := []struct {
		name string
		n    int
	}{
		{"adult", p.Adult},
		{"child", p.Child},
		{"senior", p.Senior},
		{"disability_1_3", p.Disability13},
		{"disability_4_6", p.Disability46},
		{"toddler", p.Toddler},
	}
	for _, b := range buckets {
		if b.n < 0 || b.n > MaxPerCategory {
			return fmt.Errorf("%w: %s must be between 0 and %d", ErrPassengers, b.name, MaxPerCategory)
		}
	}

	total := p.Total()
	if total < 1 {
		return fmt.Errorf("%w: at least one passenger is required", ErrPassengers)
	}
	if total > MaxPassengers {
		return fmt.Errorf("%w: at most %d passengers per reservation", ErrPassengers, MaxPassengers)
	}
	return nil
}

// Aggregate collapses every category into adults. Providers return more stable
// availability for a plain adult search than for a discounted breakdown.
func (p Passengers) Aggregate() Passengers {
	n := p.Total()
	if n < 1 {
		n = 1
	}
	return Passengers{Adult: n}
}
