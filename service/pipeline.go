package service

import (
	"context"
	"strings"

	"github.com/layer-3/gatekeeper/core"
)

// Request is the per-request state the gates read and fill in.
type Request struct {
	Token         string
	ClientAddress string
	// Params holds route parameters, read by resource loaders.
	Params map[string]string

	Identity *core.Identity
	Account  *core.Account
}

// Gate inspects a request and either lets it through or fails with one of
// the core errors.
type Gate func(ctx context.Context, req *Request) error

// Pipeline runs gates in order and stops at the first failure.
type Pipeline []Gate

func (p Pipeline) Run(ctx context.Context, req *Request) error {
	for _, gate := range p {
		if err := gate(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// ExtractToken prefers a Bearer authorization header and falls back to the
// token cookie.
func ExtractToken(authHeader, cookie string) string {
	parts := strings.SplitN(strings.TrimSpace(authHeader), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		if token := strings.TrimSpace(parts[1]); token != "" {
			return token
		}
	}
	return strings.TrimSpace(cookie)
}

// RateLimitKey scopes sensitive-operation attempts to a client address and,
// when known, the user.
func RateLimitKey(clientAddress string, identity *core.Identity) string {
	user := "anonymous"
	if identity != nil {
		user = identity.UserID
	}
	return clientAddress + ":" + user
}
