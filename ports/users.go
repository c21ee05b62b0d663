package ports

import (
	"context"

	"github.com/layer-3/gatekeeper/core"
)

// UserStore persists accounts. Lookups return core.ErrAccountNotFound when
// nothing matches, and Save returns core.ErrEmailTaken when another account
// already owns the email.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*core.Account, error)
	FindByEmail(ctx context.Context, email string) (*core.Account, error)
	FindByVerificationToken(ctx context.Context, tokenHash string) (*core.Account, error)
	FindByResetToken(ctx context.Context, tokenHash string) (*core.Account, error)
	Save(ctx context.Context, account *core.Account) error
}
