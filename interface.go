package gatekeeper

import (
	"context"
)

// Client represents the public interface for talking to a gatekeeper server
type Client interface {
	// Register creates an account and signs in
	Register(ctx context.Context, req RegisterRequest) (*User, error)

	// Login exchanges credentials for a token pair
	Login(ctx context.Context, email, password string) (*User, error)

	// Refresh rotates the stored refresh token
	Refresh(ctx context.Context) error

	// Logout revokes the stored tokens and forgets them
	Logout(ctx context.Context) error

	// Do sends an authenticated request, refreshing once if the access token expired
	Do(ctx context.Context, method, path string, body, out any) error

	// State returns where the session currently is
	State() SessionState
}

// TokenStore persists the token pair between calls
type TokenStore interface {
	// Load returns ErrNoTokens when nothing is stored
	Load(ctx context.Context) (Tokens, error)

	Save(ctx context.Context, tokens Tokens) error

	Clear(ctx context.Context) error
}
