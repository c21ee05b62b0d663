package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/gatekeeper/core"
	"github.com/layer-3/gatekeeper/internal/logger"
	"github.com/layer-3/gatekeeper/ports"
	"go.uber.org/zap"
)

const (
	SensitiveWindow      = 15 * time.Minute
	SensitiveMaxAttempts = 3
)

// Guard builds the gates that protect routes
type Guard struct {
	tokenizer ports.Tokenizer
	users     ports.UserStore
	limiter   ports.RateLimiter
	denylist  ports.Denylist
	logger    *zap.Logger
	now       func() time.Time

	sensitiveWindow time.Duration
	sensitiveMax    int
}

// NewGuard creates a guard. The denylist is optional, see WithDenylist.
func NewGuard(tokenizer ports.Tokenizer, users ports.UserStore, limiter ports.RateLimiter, lg *zap.Logger) *Guard {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Guard{
		tokenizer: tokenizer,
		users:     users,
		limiter:   limiter,
		logger:    lg,
		now:       time.Now,

		sensitiveWindow: SensitiveWindow,
		sensitiveMax:    SensitiveMaxAttempts,
	}
}

// WithDenylist makes authentication reject revoked access tokens.
func (g *Guard) WithDenylist(denylist ports.Denylist) *Guard {
	g.denylist = denylist
	return g
}

func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

// WithSensitiveLimit overrides the budget of LimitSensitiveOperation.
// Non-positive values keep the defaults.
func (g *Guard) WithSensitiveLimit(window time.Duration, max int) *Guard {
	if window > 0 {
		g.sensitiveWindow = window
	}
	if max > 0 {
		g.sensitiveMax = max
	}
	return g
}

// Authenticate requires a valid access token for an active, unlocked account.
// Expired and malformed tokens stay distinguishable through errors.Is.
func (g *Guard) Authenticate() Gate {
	return func(ctx context.Context, req *Request) error {
		if req.Identity != nil {
			return nil
		}
		identity, account, err := g.resolve(ctx, req.Token)
		if err != nil {
			return err
		}
		req.Identity, req.Account = identity, account
		return nil
	}
}

// OptionalAuthenticate attaches an identity when the token resolves to a
// usable account and never fails.
func (g *Guard) OptionalAuthenticate() Gate {
	return func(ctx context.Context, req *Request) error {
		if req.Identity != nil || req.Token == "" {
			return nil
		}
		identity, account, err := g.resolve(ctx, req.Token)
		if err != nil {
			g.log(ctx).Debug("optional authentication skipped", zap.Error(err))
			return nil
		}
		req.Identity, req.Account = identity, account
		return nil
	}
}

func (g *Guard) resolve(ctx context.Context, token string) (*core.Identity, *core.Account, error) {
	if token == "" {
		return nil, nil, core.ErrUnauthenticated
	}

	claims, err := g.tokenizer.Verify(token, core.TokenKindAccess)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", core.ErrUnauthenticated, err)
	}

	if g.denylist != nil {
		revoked, err := g.denylist.IsTokenInvalidated(ctx, claims.TokenID)
		if err != nil {
			return nil, nil, g.internal(ctx, "denylist lookup failed", err)
		}
		if revoked {
			return nil, nil, fmt.Errorf("%w: %w", core.ErrUnauthenticated, core.ErrTokenRevoked)
		}
	}

	account, err := g.users.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, core.ErrAccountNotFound) {
			return nil, nil, fmt.Errorf("%w: no user found with this token", core.ErrUnauthenticated)
		}
		return nil, nil, g.internal(ctx, "account lookup failed", err)
	}
	if err := checkAccountState(account); err != nil {
		return nil, nil, err
	}

	identity := account.Identity()
	return &identity, account, nil
}

// RequireRole admits identities holding one of roles.
func (g *Guard) RequireRole(roles ...core.Role) Gate {
	return func(ctx context.Context, req *Request) error {
		if req.Identity == nil {
			return core.ErrUnauthenticated
		}
		for _, role := range roles {
			if req.Identity.Role == role {
				return nil
			}
		}
		return &core.ForbiddenError{
			Reason: fmt.Sprintf("User role '%s' is not authorized to access this route", req.Identity.Role),
		}
	}
}

// Resource maps owner fields to user IDs.
type Resource map[string]string

// ResourceLoader fetches the resource a request targets. A nil resource or
// core.ErrNotFound means it does not exist.
type ResourceLoader func(ctx context.Context, req *Request) (Resource, error)

// RequireOwnership admits admins unconditionally, everyone else only when
// the resource's field names them.
func (g *Guard) RequireOwnership(field string, load ResourceLoader) Gate {
	return func(ctx context.Context, req *Request) error {
		if req.Identity == nil {
			return core.ErrUnauthenticated
		}
		if req.Identity.Role == core.RoleAdmin {
			return nil
		}

		resource, err := load(ctx, req)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return core.ErrNotFound
			}
			return g.internal(ctx, "resource lookup failed", err)
		}
		if resource == nil {
			return core.ErrNotFound
		}
		if owner, ok := resource[field]; !ok || owner != req.Identity.UserID {
			return core.ErrForbidden
		}
		return nil
	}
}

func (g *Guard) RequireVerifiedEmail() Gate {
	return func(ctx context.Context, req *Request) error {
		if req.Identity == nil {
			return core.ErrUnauthenticated
		}
		if !req.Identity.Flags.EmailVerified {
			return core.ErrEmailNotVerified
		}
		return nil
	}
}

// RequireAccountAge admits accounts created at least days ago.
func (g *Guard) RequireAccountAge(days int) Gate {
	minAge := time.Duration(days) * 24 * time.Hour
	return func(ctx context.Context, req *Request) error {
		if req.Identity == nil {
			return core.ErrUnauthenticated
		}
		if g.now().Sub(req.Identity.CreatedAt) < minAge {
			return &core.ForbiddenError{
				Reason: fmt.Sprintf("Account must be at least %d day(s) old to perform this action", days),
			}
		}
		return nil
	}
}

// LimitSensitiveOperation allows three attempts per client and user every
// fifteen minutes unless WithSensitiveLimit says otherwise.
func (g *Guard) LimitSensitiveOperation() Gate {
	return g.LimitOperation(g.sensitiveWindow, g.sensitiveMax)
}

func (g *Guard) LimitOperation(window time.Duration, max int) Gate {
	return func(ctx context.Context, req *Request) error {
		err := g.limiter.Check(ctx, RateLimitKey(req.ClientAddress, req.Identity), window, max)
		if err == nil || errors.Is(err, core.ErrTooManyRequests) {
			return err
		}
		return g.internal(ctx, "rate limiter failed", err)
	}
}

func (g *Guard) internal(ctx context.Context, msg string, err error) error {
	g.log(ctx).Error(msg, zap.Error(err))
	return fmt.Errorf("%w: %s", core.ErrInternal, msg)
}

func (g *Guard) log(ctx context.Context) *zap.Logger {
	return logger.WithContext(ctx, g.logger)
}

func checkAccountState(account *core.Account) error {
	if !account.IsActive {
		return core.ErrAccountDeactivated
	}
	if account.IsLocked {
		return core.ErrAccountLocked
	}
	return nil
}
