package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bbang93/macro-api/cmd/internal/rail"
)

// Session is one authenticated rail login.
type Session struct {
	ID        string
	Kind      rail.Kind
	CreatedAt time.Time

	mu        sync.Mutex
	sealed    []byte
	client    rail.Client
	user      rail.UserInfo
	expiresAt time.Time
	jobs      map[string]context.CancelFunc
	destroyed bool
}

// Client returns the current provider handle. It changes after re-authentication.
func (s *Session) Client() rail.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// UserInfo returns the provider's member info from the latest login.
func (s *Session) UserInfo() rail.UserInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// ExpiresAt returns the current expiry.
func (s *Session) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt
}

// AttachJob records the cancel handle of a job started under this session.
// It returns false when the session is already destroyed; the caller must
// then cancel the job itself.
func (s *Session) AttachJob(jobID string, cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return false
	}
	if s.jobs == nil {
		s.jobs = make(map[string]context.CancelFunc)
	}
	s.jobs[jobID] = cancel
	return true
}

// DetachJob forgets a job's cancel handle.
func (s *Session) DetachJob(jobID string) {
	s.mu.Lock()
	delete(s.jobs, jobID)
	s.mu.Unlock()
}

// JobIDs lists attached job ids in sorted order.
func (s *Session) JobIDs() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		out = append(out, id)
	}
	s.mu.Unlock()

	sort.Strings(out)
	return out
}

func (s *Session) expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed || now.After(s.expiresAt)
}

func (s *Session) extend(exp time.Time) {
	s.mu.Lock()
	s.expiresAt = exp
	s.mu.Unlock()
}

func (s *Session) sealedCopy() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.sealed...)
}

// replaceClient swaps in a fresh provider handle. It reports false when
// the session was destroyed while the re-login was in flight.
func (s *Session) replaceClient(c rail.Client, info rail.UserInfo) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return false
	}
	s.client = c
	s.user = info
	return true
}

// teardown marks the session destroyed and hands back what the caller must release.
func (s *Session) teardown() (cancels []context.CancelFunc, client rail.Client, sealed []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.destroyed = true
	for _, c := range s.jobs {
		cancels = append(cancels, c)
	}
	s.jobs = nil
	client = s.client
	sealed = s.sealed
	s.sealed = nil
	return cancels, client, sealed
}
