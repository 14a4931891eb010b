package auth

import (
	"context"
	"errors"
	"sync"
)

// State is the lifecycle of a session principal.
type State int

const (
	// Unauthenticated: no credential, or the session was signed out.
	Unauthenticated State = iota
	// ResolvingProfile: a credential exists but its profile is not confirmed.
	ResolvingProfile
	// Authenticated: credential and profile are both confirmed.
	Authenticated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case ResolvingProfile:
		return "resolving_profile"
	case Authenticated:
		return "authenticated"
	}
	return "unknown"
}

// Transition describes one state change. Cause is set on forced sign-out.
type Transition struct {
	From, To State
	UID      string
	Cause    error
}

// ForcedSignOut reports whether the transition ended a session because the
// profile could not be resolved or the credential disappeared.
func (t Transition) ForcedSignOut() bool {
	return t.To == Unauthenticated && t.Cause != nil
}

// Session is the state machine for one principal. It is safe for concurrent
// use; a credential event supersedes any resolution still in flight.
type Session struct {
	resolver *Resolver

	mu        sync.Mutex
	state     State
	uid       string
	user      *SessionUser
	gen       uint64
	observers []func(Transition)
}

// NewSession starts in Unauthenticated.
func NewSession(resolver *Resolver) *Session {
	return &Session{resolver: resolver}
}

// OnTransition registers fn to be called after every state change.
func (s *Session) OnTransition(fn func(Transition)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// User returns the confirmed principal when Authenticated.
func (s *Session) User() (*SessionUser, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Authenticated {
		return nil, false
	}
	return s.user, true
}

// CredentialEstablished handles a new (or restored) credential: it moves to
// ResolvingProfile, resolves the profile with retry and ends in
// Authenticated, or in Unauthenticated via forced sign-out.
//
// If the caller's context ends mid-resolution the session is left in
// ResolvingProfile and ctx.Err() is returned. If CredentialCleared or another
// CredentialEstablished arrives first, the stale result is discarded and
// ErrCredentialCleared is returned.
func (s *Session) CredentialEstablished(ctx context.Context, uid string) (*SessionUser, error) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	t := s.setLocked(ResolvingProfile, uid, nil, nil)
	s.mu.Unlock()
	s.notify(t)

	u, err := s.resolver.Resolve(ctx, uid)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return nil, ErrCredentialCleared
	}
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		s.mu.Unlock()
		return nil, err
	}
	if err != nil {
		t = s.setLocked(Unauthenticated, "", nil, err)
	} else {
		t = s.setLocked(Authenticated, uid, u, nil)
	}
	s.mu.Unlock()
	s.notify(t)
	return u, err
}

// CredentialCleared handles explicit sign-out or external revocation: the
// session becomes Unauthenticated immediately, without any fetch.
func (s *Session) CredentialCleared() {
	s.mu.Lock()
	s.gen++
	t := s.setLocked(Unauthenticated, "", nil, nil)
	s.mu.Unlock()
	s.notify(t)
}

func (s *Session) setLocked(to State, uid string, u *SessionUser, cause error) Transition {
	t := Transition{From: s.state, To: to, UID: s.uid, Cause: cause}
	if uid != "" {
		t.UID = uid
	}
	s.state, s.uid, s.user = to, uid, u
	return t
}

func (s *Session) notify(t Transition) {
	s.mu.Lock()
	obs := append(([]func(Transition))(nil), s.observers...)
	s.mu.Unlock()
	for _, fn := range obs {
		fn(t)
	}
}
