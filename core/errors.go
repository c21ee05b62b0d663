package core

import (
	"errors"
	"fmt"
)

var (
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenExpired   = errors.New("token has expired")
	ErrWrongTokenKind = errors.New("token kind mismatch")
	ErrTokenRevoked   = errors.New("token has been revoked")

	ErrUnauthenticated    = errors.New("not authorized to access this route")
	ErrAccountDeactivated = errors.New("user account has been deactivated")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrForbidden          = errors.New("not authorized to access this resource")
	ErrNotFound           = errors.New("resource not found")
	ErrEmailNotVerified   = errors.New("email verification required to perform this action")
	ErrTooManyRequests    = errors.New("too many requests")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInternal           = errors.New("internal error")

	ErrAccountNotFound          = errors.New("account not found")
	ErrEmailTaken               = errors.New("user already exists with this email")
	ErrEmailAlreadyVerified     = errors.New("email is already verified")
	ErrInvalidVerificationToken = errors.New("invalid or expired verification token")
	ErrInvalidResetToken        = errors.New("invalid or expired reset token")
	ErrSelfStatusChange         = errors.New("cannot change your own account status")
	ErrInvalidRole              = errors.New("invalid role")
	ErrInvalidInput             = errors.New("invalid input")
)

// ForbiddenError is a Forbidden failure carrying a caller-facing reason.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return e.Reason
}

func (e *ForbiddenError) Is(target error) bool {
	return target == ErrForbidden
}

// RateLimitError reports a rejected attempt and the whole seconds until the
// oldest attempt in the window leaves it.
type RateLimitError struct {
	RetryAfter int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many requests, retry after %ds", e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrTooManyRequests
}
