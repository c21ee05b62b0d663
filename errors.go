package gatekeeper

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotAuthenticated is returned when a call needs tokens the client does not hold
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrSessionExpired is returned when the access token expired and could not be refreshed
	ErrSessionExpired = errors.New("session expired")

	// ErrInvalidTransition is returned when a session event does not apply to the current state
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrNoTokens is returned by a TokenStore that holds nothing
	ErrNoTokens = errors.New("no tokens stored")
)

const codeTokenExpired = "TOKEN_EXPIRED"

// APIError is a failure envelope returned by the server.
type APIError struct {
	Status     int    `json:"-"`
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gatekeeper: %d %s (%s)", e.Status, e.Message, e.Code)
	}
	return fmt.Sprintf("gatekeeper: %d %s", e.Status, e.Message)
}

// TokenExpired reports whether the access token was rejected only because it
// expired, which is the one failure worth a refresh.
func (e *APIError) TokenExpired() bool {
	return e.Status == http.StatusUnauthorized && e.Code == codeTokenExpired
}
