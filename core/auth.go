package core

import "time"

// TokenKind discriminates access from refresh tokens. It travels as the
// token audience.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "session:access"
	TokenKindRefresh TokenKind = "session:refresh"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

type Credentials struct {
	Email    string
	Password string
}

// Account is the stored user record.
type Account struct {
	ID                string
	Email             string
	Name              string
	Phone             string
	PasswordHash      string
	Role              Role
	IsActive          bool
	IsLocked          bool
	IsEmailVerified   bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
	PasswordChangedAt time.Time

	EmailVerificationTokenHash string
	EmailVerificationExpires   time.Time
	PasswordResetTokenHash     string
	PasswordResetExpires       time.Time
}

// Identity returns the view of the account that gates and handlers act on.
func (a *Account) Identity() Identity {
	return Identity{
		UserID: a.ID,
		Role:   a.Role,
		Flags: Flags{
			Active:        a.IsActive,
			Locked:        a.IsLocked,
			EmailVerified: a.IsEmailVerified,
		},
		CreatedAt: a.CreatedAt,
	}
}

type Flags struct {
	Active        bool
	Locked        bool
	EmailVerified bool
}

// Identity is the resolved caller attached to a request.
type Identity struct {
	UserID    string
	Role      Role
	Flags     Flags
	CreatedAt time.Time
}

// Claims are the verified contents of a session token.
type Claims struct {
	TokenID   string
	Subject   string
	Role      Role
	Kind      TokenKind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type TokenPair struct {
	Access           string
	Refresh          string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
