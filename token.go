package gatekeeper

import (
	"fmt"
	"time"

	"github.com/layer-3/gatekeeper/adapters/tokenizer"
	"github.com/layer-3/gatekeeper/core"
)

// Tokens is the pair handed out by login, register and refresh
type Tokens struct {
	Access  string `json:"token"`
	Refresh string `json:"refreshToken"`
}

// Token is a decoded JWT. The client cannot check signatures, it only reads
// claims to know when to refresh.
type Token struct {
	raw    string
	claims *core.Claims
}

// ParseToken decodes a token without verifying it
func ParseToken(raw string) (Token, error) {
	claims, err := tokenizer.Decode(raw)
	if err != nil {
		return Token{}, fmt.Errorf("parse token: %w", err)
	}
	return Token{raw: raw, claims: claims}, nil
}

// String returns the JWT string representation of the token
func (t Token) String() string {
	return t.raw
}

func (t Token) Kind() core.TokenKind {
	return t.claims.Kind
}

func (t Token) Subject() string {
	return t.claims.Subject
}

func (t Token) Role() core.Role {
	return t.claims.Role
}

func (t Token) ID() string {
	return t.claims.TokenID
}

func (t Token) ExpiresAt() time.Time {
	return t.claims.ExpiresAt
}

// Expired reports whether the token is past its expiry at now.
func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.claims.ExpiresAt)
}
