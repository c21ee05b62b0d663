package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/gatekeeper/core"
	"github.com/layer-3/gatekeeper/internal/logger"
	"github.com/layer-3/gatekeeper/ports"
	"go.uber.org/zap"
)

const (
	DefaultVerificationTTL = 24 * time.Hour
	DefaultResetTTL        = 10 * time.Minute
)

// AuthConfig tunes the one-time token lifetimes and the links mailed out.
type AuthConfig struct {
	VerificationTTL time.Duration
	ResetTTL        time.Duration
	// AppURL prefixes the verification and reset links.
	AppURL string
}

// AuthService handles authentication business logic
type AuthService struct {
	tokenizer ports.Tokenizer
	users     ports.UserStore
	hasher    ports.PasswordHasher
	mailer    ports.EmailSender
	eventPub  ports.EventPublisher
	denylist  ports.Denylist
	logger    *zap.Logger
	now       func() time.Time

	verificationTTL time.Duration
	resetTTL        time.Duration
	appURL          string

	dummyOnce sync.Once
	dummy     string
}

// NewAuthService creates a new authentication service. eventPub may be nil.
func NewAuthService(
	tokenizer ports.Tokenizer,
	users ports.UserStore,
	hasher ports.PasswordHasher,
	mailer ports.EmailSender,
	eventPub ports.EventPublisher,
	cfg AuthConfig,
	lg *zap.Logger,
) *AuthService {
	if lg == nil {
		lg = zap.NewNop()
	}
	if cfg.VerificationTTL <= 0 {
		cfg.VerificationTTL = DefaultVerificationTTL
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = DefaultResetTTL
	}
	return &AuthService{
		tokenizer:       tokenizer,
		users:           users,
		hasher:          hasher,
		mailer:          mailer,
		eventPub:        eventPub,
		logger:          lg,
		now:             time.Now,
		verificationTTL: cfg.VerificationTTL,
		resetTTL:        cfg.ResetTTL,
		appURL:          strings.TrimRight(cfg.AppURL, "/"),
	}
}

// WithDenylist turns on refresh token rotation and logout revocation.
// Without it the service stays stateless and refresh tokens can be replayed
// until they expire.
func (s *AuthService) WithDenylist(denylist ports.Denylist) *AuthService {
	s.denylist = denylist
	return s
}

func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// Session is the outcome of any operation that signs a user in.
type Session struct {
	Account  *core.Account
	Identity core.Identity
	Tokens   core.TokenPair
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Phone    string
}

// Register creates a user account, mails a verification link and signs the
// user in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", core.ErrInvalidInput)
	}

	_, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, core.ErrEmailTaken
	case !errors.Is(err, core.ErrAccountNotFound):
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	verifyToken, err := newOneTimeToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	account := &core.Account{
		ID:                         uuid.NewString(),
		Email:                      email,
		Name:                       strings.TrimSpace(in.Name),
		Phone:                      strings.TrimSpace(in.Phone),
		PasswordHash:               hash,
		Role:                       core.RoleUser,
		IsActive:                   true,
		CreatedAt:                  now,
		UpdatedAt:                  now,
		PasswordChangedAt:          now,
		EmailVerificationTokenHash: verifyToken.hash,
		EmailVerificationExpires:   now.Add(s.verificationTTL),
	}
	if err := s.users.Save(ctx, account); err != nil {
		if errors.Is(err, core.ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to save account: %w", err)
	}

	session, err := s.issue(account)
	if err != nil {
		return nil, err
	}

	// The account exists either way, a lost mail can be resent.
	s.sendMail(ctx, account, ports.TemplateEmailVerification, map[string]any{
		"name":  account.Name,
		"token": verifyToken.plain,
		"url":   s.appURL + "/verify-email/" + verifyToken.plain,
	})
	s.publish(ctx, core.EventRegistered, account.ID, "")

	return session, nil
}

// Login signs a user in with email and password. Unknown emails and wrong
// passwords fail identically.
func (s *AuthService) Login(ctx context.Context, creds core.Credentials) (*Session, error) {
	account, err := s.users.FindByEmail(ctx, normalizeEmail(creds.Email))
	if err != nil {
		if errors.Is(err, core.ErrAccountNotFound) {
			_ = s.hasher.Compare(s.dummyHash(), creds.Password)
			return nil, core.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	if err := s.hasher.Compare(account.PasswordHash, creds.Password); err != nil {
		if errors.Is(err, core.ErrInvalidCredentials) {
			return nil, core.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}

	if err := checkAccountState(account); err != nil {
		return nil, err
	}

	session, err := s.issue(account)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, core.EventLoggedIn, account.ID, "")
	return session, nil
}

// dummyHash is compared against for unknown emails so they take as long
// to reject as wrong passwords.
func (s *AuthService) dummyHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("gatekeeper-unknown-account")
		if err != nil {
			s.logger.Warn("failed to build dummy password hash", zap.Error(err))
			return
		}
		s.dummy = hash
	})
	return s.dummy
}

// Refresh exchanges a refresh token for a new pair. With a denylist the
// presented token is consumed atomically, so a replay or a concurrent
// second exchange fails with core.ErrTokenRevoked.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	claims, err := s.tokenizer.Verify(refreshToken, core.TokenKindRefresh)
	if err != nil {
		return nil, err
	}

	account, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, core.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: no user found with this token", core.ErrUnauthenticated)
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if err := checkAccountState(account); err != nil {
		return nil, err
	}

	if s.denylist != nil {
		// Keep the entry for the token's remaining life, after that the
		// signature check rejects it anyway.
		fresh, err := s.denylist.InvalidateToken(ctx, claims.TokenID, claims.ExpiresAt.Sub(s.now()))
		if err != nil {
			return nil, fmt.Errorf("failed to invalidate old token: %w", err)
		}
		if !fresh {
			return nil, core.ErrTokenRevoked
		}
	}

	session, err := s.issue(account)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, core.EventTokensRefreshed, account.ID, claims.TokenID)
	return session, nil
}

// Logout revokes the presented tokens when a denylist is configured. The
// client discards its tokens regardless, so only the access token is
// required and tokens that fail verification are skipped.
func (s *AuthService) Logout(ctx context.Context, userID, accessToken, refreshToken string) error {
	var errs []error

	if s.denylist != nil {
		if err := s.revoke(ctx, userID, accessToken, core.TokenKindAccess); err != nil {
			errs = append(errs, err)
		}
		if refreshToken != "" {
			if err := s.revoke(ctx, userID, refreshToken, core.TokenKindRefresh); err != nil {
				errs = append(errs, err)
			}
		}
	}

	s.publish(ctx, core.EventLoggedOut, userID, "")
	return errors.Join(errs...)
}

func (s *AuthService) revoke(ctx context.Context, userID, token string, kind core.TokenKind) error {
	claims, err := s.tokenizer.Verify(token, kind)
	if err != nil || claims.Subject != userID {
		return nil
	}
	if _, err := s.denylist.InvalidateToken(ctx, claims.TokenID, claims.ExpiresAt.Sub(s.now())); err != nil {
		return fmt.Errorf("failed to invalidate %s token: %w", kind, err)
	}
	return nil
}

// ChangePassword replaces the password after checking the current one.
// Outstanding tokens stay valid.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next string) error {
	account, err := s.account(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.hasher.Compare(account.PasswordHash, current); err != nil {
		if errors.Is(err, core.ErrInvalidCredentials) {
			return fmt.Errorf("%w: current password is incorrect", core.ErrInvalidCredentials)
		}
		return fmt.Errorf("failed to verify password: %w", err)
	}

	if err := s.setPassword(ctx, account, next); err != nil {
		return err
	}
	s.publish(ctx, core.EventPasswordChanged, account.ID, "")
	return nil
}

// VerifyEmail marks the account owning the token as verified.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*core.Account, error) {
	if !validOneTimeToken(token) {
		return nil, core.ErrInvalidVerificationToken
	}

	account, err := s.users.FindByVerificationToken(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, core.ErrAccountNotFound) {
			return nil, core.ErrInvalidVerificationToken
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	now := s.now()
	if !now.Before(account.EmailVerificationExpires) {
		return nil, core.ErrInvalidVerificationToken
	}

	account.IsEmailVerified = true
	account.EmailVerificationTokenHash = ""
	account.EmailVerificationExpires = time.Time{}
	account.UpdatedAt = now
	if err := s.users.Save(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to save account: %w", err)
	}

	s.sendMail(ctx, account, ports.TemplateWelcome, map[string]any{"name": account.Name})
	s.publish(ctx, core.EventEmailVerified, account.ID, "")
	return account, nil
}

// ResendVerification replaces the verification token and mails it again.
func (s *AuthService) ResendVerification(ctx context.Context, userID string) error {
	account, err := s.account(ctx, userID)
	if err != nil {
		return err
	}
	if account.IsEmailVerified {
		return core.ErrEmailAlreadyVerified
	}

	token, err := newOneTimeToken()
	if err != nil {
		return err
	}
	now := s.now()
	account.EmailVerificationTokenHash = token.hash
	account.EmailVerificationExpires = now.Add(s.verificationTTL)
	account.UpdatedAt = now
	if err := s.users.Save(ctx, account); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	s.sendMail(ctx, account, ports.TemplateEmailVerification, map[string]any{
		"name":  account.Name,
		"token": token.plain,
		"url":   s.appURL + "/verify-email/" + token.plain,
	})
	return nil
}

// ForgotPassword mails a reset link when the email belongs to an account.
// It reports success either way so callers cannot discover accounts.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	account, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, core.ErrAccountNotFound) {
			s.log(ctx).Debug("password reset requested for unknown email", zap.String("email", logger.MaskEmail(email)))
			return nil
		}
		return fmt.Errorf("failed to look up account: %w", err)
	}

	token, err := newOneTimeToken()
	if err != nil {
		return err
	}
	now := s.now()
	account.PasswordResetTokenHash = token.hash
	account.PasswordResetExpires = now.Add(s.resetTTL)
	account.UpdatedAt = now
	if err := s.users.Save(ctx, account); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	s.sendMail(ctx, account, ports.TemplatePasswordReset, map[string]any{
		"name":  account.Name,
		"token": token.plain,
		"url":   s.appURL + "/reset-password/" + token.plain,
	})
	return nil
}

// ResetPassword sets a new password from a mailed reset token and signs the
// user in.
func (s *AuthService) ResetPassword(ctx context.Context, token, password string) (*Session, error) {
	if !validOneTimeToken(token) {
		return nil, core.ErrInvalidResetToken
	}

	account, err := s.users.FindByResetToken(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, core.ErrAccountNotFound) {
			return nil, core.ErrInvalidResetToken
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if !s.now().Before(account.PasswordResetExpires) {
		return nil, core.ErrInvalidResetToken
	}
	if err := checkAccountState(account); err != nil {
		return nil, err
	}

	account.PasswordResetTokenHash = ""
	account.PasswordResetExpires = time.Time{}
	if err := s.setPassword(ctx, account, password); err != nil {
		return nil, err
	}

	session, err := s.issue(account)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, core.EventPasswordReset, account.ID, "")
	return session, nil
}

// Me returns the caller's account.
func (s *AuthService) Me(ctx context.Context, userID string) (*core.Account, error) {
	return s.account(ctx, userID)
}

// ProfileInput holds optional profile changes, nil fields stay untouched.
type ProfileInput struct {
	Name  *string
	Phone *string
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*core.Account, error) {
	account, err := s.account(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		account.Name = strings.TrimSpace(*in.Name)
	}
	if in.Phone != nil {
		account.Phone = strings.TrimSpace(*in.Phone)
	}
	account.UpdatedAt = s.now()

	if err := s.users.Save(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to save account: %w", err)
	}
	return account, nil
}

// GetAccount returns any account by ID, core.ErrAccountNotFound if missing.
func (s *AuthService) GetAccount(ctx context.Context, id string) (*core.Account, error) {
	return s.account(ctx, id)
}

// SetAccountActive activates or deactivates another user's account.
func (s *AuthService) SetAccountActive(ctx context.Context, actorID, userID string, active bool) (*core.Account, error) {
	if actorID == userID {
		return nil, core.ErrSelfStatusChange
	}

	account, err := s.account(ctx, userID)
	if err != nil {
		return nil, err
	}
	account.IsActive = active
	account.UpdatedAt = s.now()
	if err := s.users.Save(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to save account: %w", err)
	}

	s.publish(ctx, core.EventStatusChanged, account.ID, "")
	return account, nil
}

func (s *AuthService) account(ctx context.Context, id string) (*core.Account, error) {
	account, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	return account, nil
}

func (s *AuthService) setPassword(ctx context.Context, account *core.Account, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	account.PasswordHash = hash
	account.PasswordChangedAt = now
	account.UpdatedAt = now
	if err := s.users.Save(ctx, account); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

func (s *AuthService) issue(account *core.Account) (*Session, error) {
	pair, err := s.tokenizer.Issue(account.ID, account.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to issue tokens: %w", err)
	}
	return &Session{
		Account:  account,
		Identity: account.Identity(),
		Tokens:   pair,
	}, nil
}

func (s *AuthService) sendMail(ctx context.Context, account *core.Account, template string, data map[string]any) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.Send(ctx, account.Email, template, data); err != nil {
		s.log(ctx).Warn("failed to send mail",
			zap.String("template", template),
			zap.String("email", logger.MaskEmail(account.Email)),
			zap.Error(err),
		)
	}
}

// publish is best effort, losing an event never fails the operation.
func (s *AuthService) publish(ctx context.Context, eventType core.SessionEventType, userID, tokenID string) {
	if s.eventPub == nil {
		return
	}
	event := core.SessionEvent{
		Type:       eventType,
		UserID:     userID,
		TokenID:    tokenID,
		OccurredAt: s.now().UTC(),
	}
	if err := s.eventPub.PublishSessionEvent(ctx, event); err != nil {
		s.log(ctx).Warn("failed to publish session event", zap.String("type", string(eventType)), zap.Error(err))
	}
}

func (s *AuthService) log(ctx context.Context) *zap.Logger {
	return logger.WithContext(ctx, s.logger)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
