// Package session holds browser authentication state: the cookies or
// credentials that let a driver past a login wall, and the channel by which
// a run can ask an operator for credentials it does not have.
package session

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrAlreadyVerified is returned when a second writer tries to mark the
// same session verified.
var ErrAlreadyVerified = eris.New("session: already verified")

// Credentials is a username/password pair for an interactive login.
type Credentials struct {
	Username string
	Password string
}

// Cookie is the subset of a browser cookie the driver needs to restore a
// session.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HTTPOnly bool      `json:"http_only,omitempty"`
}

// State is the shared authentication state for one logical site. It is
// read-mostly: many driver flows read it, and exactly one successful login
// writes it. A second write is a bug and is rejected.
type State struct {
	mu         sync.RWMutex
	cookies    []Cookie
	verifiedAt time.Time
}

// NewState returns an unverified State, optionally seeded with persisted
// cookies. Seeded cookies are applied before first navigation but do not
// count as verified until a login check passes.
func NewState(cookies []Cookie) *State {
	return &State{cookies: append([]Cookie(nil), cookies...)}
}

// Cookies returns a copy of the current cookie set.
func (s *State) Cookies() []Cookie {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Cookie(nil), s.cookies...)
}

// Verified reports whether a login check has passed for this session.
func (s *State) Verified() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.verifiedAt.IsZero()
}

// VerifiedAt returns when the session was verified, zero if never.
func (s *State) VerifiedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.verifiedAt
}

// MarkVerified records a successful login and the cookie set that proved
// it. It may be called once; concurrent or repeated verification attempts
// get ErrAlreadyVerified and must treat the existing state as current.
func (s *State) MarkVerified(cookies []Cookie, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.verifiedAt.IsZero() {
		return ErrAlreadyVerified
	}
	if at.IsZero() {
		at = time.Now()
	}
	s.cookies = append([]Cookie(nil), cookies...)
	s.verifiedAt = at
	return nil
}
