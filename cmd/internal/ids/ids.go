// Package ids provides the id primitives used across the service.
//
// Job ids are ULIDs so they sort by creation time in logs and listings.
// Session ids are random UUIDv4 values because they act as bearer handles.
package ids

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewULID returns a new ULID string (26 chars).
func NewULID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewSessionID returns a random UUIDv4 string.
func NewSessionID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ValidSessionID reports whether s parses as a UUID.
// Used to reject junk path values before they reach a map lookup or a log line.
func ValidSessionID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
