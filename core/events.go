package core

import "time"

type SessionEventType string

const (
	EventRegistered      SessionEventType = "registered"
	EventLoggedIn        SessionEventType = "logged_in"
	EventLoggedOut       SessionEventType = "logged_out"
	EventTokensRefreshed SessionEventType = "tokens_refreshed"
	EventPasswordChanged SessionEventType = "password_changed"
	EventPasswordReset   SessionEventType = "password_reset"
	EventEmailVerified   SessionEventType = "email_verified"
	EventStatusChanged   SessionEventType = "status_changed"
)

// SessionEvent notifies other services about session lifecycle changes.
type SessionEvent struct {
	Type       SessionEventType `json:"type"`
	UserID     string           `json:"user_id"`
	TokenID    string           `json:"token_id,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}
