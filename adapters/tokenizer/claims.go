package tokenizer

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/gatekeeper/core"
)

// SessionClaims combines standard claims with the subject's role.
// The audience carries the token kind.
type SessionClaims struct {
	jwt.RegisteredClaims
	Role core.Role `json:"role"`
}

func newSessionClaims(subject string, role core.Role, kind core.TokenKind, tokenID string) SessionClaims {
	return SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			ID:       tokenID,
			Audience: jwt.ClaimStrings{string(kind)},
		},
		Role: role,
	}
}

func (c *SessionClaims) kind() core.TokenKind {
	if len(c.Audience) != 1 {
		return ""
	}
	return core.TokenKind(c.Audience[0])
}

func (c *SessionClaims) toCore() *core.Claims {
	claims := &core.Claims{
		TokenID: c.ID,
		Subject: c.Subject,
		Role:    c.Role,
		Kind:    c.kind(),
	}
	if c.IssuedAt != nil {
		claims.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		claims.ExpiresAt = c.ExpiresAt.Time
	}
	return claims
}
