package gatekeeper

import (
	"fmt"
	"sync"
)

// SessionState is where a client session stands
type SessionState int

const (
	StateAnonymous SessionState = iota
	StateAuthenticated
	StateAccessExpired
	StateLoggedOut
)

func (s SessionState) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	case StateAccessExpired:
		return "access_expired"
	case StateLoggedOut:
		return "logged_out"
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

// SignedIn reports whether the session still holds a usable refresh token.
func (s SessionState) SignedIn() bool {
	return s == StateAuthenticated || s == StateAccessExpired
}

type sessionEvent string

const (
	eventSignedIn      sessionEvent = "signed_in"
	eventAccessExpired sessionEvent = "access_expired"
	eventRefreshed     sessionEvent = "refreshed"
	eventRefreshFailed sessionEvent = "refresh_failed"
	eventSignedOut     sessionEvent = "signed_out"
)

var transitions = map[SessionState]map[sessionEvent]SessionState{
	StateAnonymous: {
		eventSignedIn:      StateAuthenticated,
		eventRefreshed:     StateAuthenticated,
		eventRefreshFailed: StateLoggedOut,
		eventSignedOut:     StateLoggedOut,
	},
	StateAuthenticated: {
		eventSignedIn:      StateAuthenticated,
		eventAccessExpired: StateAccessExpired,
		eventRefreshed:     StateAuthenticated,
		eventRefreshFailed: StateLoggedOut,
		eventSignedOut:     StateLoggedOut,
	},
	StateAccessExpired: {
		eventSignedIn:      StateAuthenticated,
		eventRefreshed:     StateAuthenticated,
		eventRefreshFailed: StateLoggedOut,
		eventSignedOut:     StateLoggedOut,
	},
	StateLoggedOut: {
		eventSignedIn:      StateAuthenticated,
		eventRefreshed:     StateAuthenticated,
		eventRefreshFailed: StateLoggedOut,
		eventSignedOut:     StateLoggedOut,
	},
}

// Session tracks the client side session state machine
type Session struct {
	mu    sync.Mutex
	state SessionState
}

func NewSession(initial SessionState) *Session {
	return &Session{state: initial}
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// apply moves the session along ev and returns the new state.
func (s *Session) apply(ev sessionEvent) (SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, ok := transitions[s.state][ev]
	if !ok {
		return s.state, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, s.state)
	}
	s.state = next
	return next, nil
}
