package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/gatekeeper/core"
	"github.com/layer-3/gatekeeper/internal/logger"
	"github.com/layer-3/gatekeeper/service"
	"go.uber.org/zap"
)

// CookieConfig controls the token cookie set next to the JSON response.
type CookieConfig struct {
	Secure bool
	Domain string
}

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	*responder
	auth      *service.AuthService
	sanitizer *Sanitizer
	cookie    CookieConfig
	now       func() time.Time
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(auth *service.AuthService, cookie CookieConfig, lg *zap.Logger, rec Recorder) *AuthHandlers {
	return &AuthHandlers{
		responder: newResponder(lg, rec),
		auth:      auth,
		sanitizer: NewSanitizer(),
		cookie:    cookie,
		now:       time.Now,
	}
}

type userView struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	Name            string    `json:"name"`
	Phone           string    `json:"phone,omitempty"`
	Role            core.Role `json:"role"`
	IsActive        bool      `json:"isActive"`
	IsEmailVerified bool      `json:"isEmailVerified"`
	CreatedAt       time.Time `json:"createdAt"`
}

func newUserView(acc *core.Account) userView {
	return userView{
		ID:              acc.ID,
		Email:           acc.Email,
		Name:            acc.Name,
		Phone:           acc.Phone,
		Role:            acc.Role,
		IsActive:        acc.IsActive,
		IsEmailVerified: acc.IsEmailVerified,
		CreatedAt:       acc.CreatedAt,
	}
}

var refreshErrorCases = []errorCase{
	{core.ErrTokenExpired, http.StatusUnauthorized, "Refresh token expired", "REFRESH_TOKEN_EXPIRED"},
	{core.ErrTokenRevoked, http.StatusUnauthorized, "Refresh token has been revoked", "REFRESH_TOKEN_REVOKED"},
	{core.ErrTokenMalformed, http.StatusUnauthorized, "Invalid refresh token", "INVALID_REFRESH_TOKEN"},
	{core.ErrWrongTokenKind, http.StatusUnauthorized, "Invalid refresh token", "INVALID_REFRESH_TOKEN"},
}

var changePasswordErrorCases = []errorCase{
	{core.ErrInvalidCredentials, http.StatusBadRequest, "Current password is incorrect", "INVALID_PASSWORD"},
}

// Register handles account creation
func (h *AuthHandlers) Register(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required,min=2,max=50"`
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=6,max=128"`
		Phone    string `json:"phone" binding:"omitempty,max=20"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}
	h.sanitizer.Clean(&req.Name, &req.Email, &req.Phone)

	session, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
	})
	if err != nil {
		h.metrics.RecordAuthEvent("register", "failure")
		h.fail(c, err)
		return
	}
	h.metrics.RecordAuthEvent("register", "success")

	h.setTokenCookie(c, session.Tokens)
	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"message":      "User registered successfully. Please check your email to verify your account.",
		"token":        session.Tokens.Access,
		"refreshToken": session.Tokens.Refresh,
		"user":         newUserView(session.Account),
	})
}

// Login handles the login request
func (h *AuthHandlers) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}
	h.sanitizer.Clean(&req.Email)

	session, err := h.auth.Login(c.Request.Context(), core.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		h.metrics.RecordAuthEvent("login", "failure")
		h.fail(c, err)
		return
	}
	h.metrics.RecordAuthEvent("login", "success")

	h.setTokenCookie(c, session.Tokens)
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"token":        session.Tokens.Access,
		"refreshToken": session.Tokens.Refresh,
		"user":         newUserView(session.Account),
	})
}

// Refresh handles token refresh
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}

	session, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.metrics.RecordAuthEvent("refresh", "failure")
		h.fail(c, err, refreshErrorCases...)
		return
	}
	h.metrics.RecordAuthEvent("refresh", "success")

	h.setTokenCookie(c, session.Tokens)
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"token":        session.Tokens.Access,
		"refreshToken": session.Tokens.Refresh,
	})
}

// Logout handles session logout. It always succeeds for an authenticated
// caller, revocation problems are only logged.
func (h *AuthHandlers) Logout(c *gin.Context) {
	req := RequestFrom(c)

	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	// the body is optional
	_ = c.ShouldBindJSON(&body)

	if err := h.auth.Logout(c.Request.Context(), req.Identity.UserID, req.Token, body.RefreshToken); err != nil {
		logger.WithContext(c.Request.Context(), h.logger).Warn("failed to revoke tokens on logout", zap.Error(err))
	}
	h.metrics.RecordAuthEvent("logout", "success")

	h.clearTokenCookie(c)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out successfully"})
}

// Me returns the authenticated user
func (h *AuthHandlers) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "user": newUserView(RequestFrom(c).Account)})
}

// Session reports whether the caller is signed in without requiring it.
func (h *AuthHandlers) Session(c *gin.Context) {
	req := RequestFrom(c)
	if req.Account == nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "authenticated": true, "user": newUserView(req.Account)})
}

func (h *AuthHandlers) UpdateProfile(c *gin.Context) {
	var req struct {
		Name  *string `json:"name" binding:"omitempty,min=2,max=50"`
		Phone *string `json:"phone" binding:"omitempty,max=20"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}
	h.sanitizer.Clean(req.Name, req.Phone)

	acc, err := h.auth.UpdateProfile(c.Request.Context(), RequestFrom(c).Identity.UserID, service.ProfileInput{
		Name:  req.Name,
		Phone: req.Phone,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Profile updated successfully", "user": newUserView(acc)})
}

func (h *AuthHandlers) ChangePassword(c *gin.Context) {
	var req struct {
		CurrentPassword string `json:"currentPassword" binding:"required"`
		NewPassword     string `json:"newPassword" binding:"required,min=6,max=128"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}

	err := h.auth.ChangePassword(c.Request.Context(), RequestFrom(c).Identity.UserID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		h.metrics.RecordAuthEvent("change_password", "failure")
		h.fail(c, err, changePasswordErrorCases...)
		return
	}
	h.metrics.RecordAuthEvent("change_password", "success")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password changed successfully"})
}

func (h *AuthHandlers) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}
	h.sanitizer.Clean(&req.Email)

	if err := h.auth.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "If an account with that email exists, a password reset link has been sent.",
	})
}

func (h *AuthHandlers) ResetPassword(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required,min=6,max=128"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}

	session, err := h.auth.ResetPassword(c.Request.Context(), c.Param("token"), req.Password)
	if err != nil {
		h.metrics.RecordAuthEvent("reset_password", "failure")
		h.fail(c, err)
		return
	}
	h.metrics.RecordAuthEvent("reset_password", "success")

	h.setTokenCookie(c, session.Tokens)
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "Password reset successful",
		"token":        session.Tokens.Access,
		"refreshToken": session.Tokens.Refresh,
	})
}

func (h *AuthHandlers) VerifyEmail(c *gin.Context) {
	if _, err := h.auth.VerifyEmail(c.Request.Context(), c.Param("token")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Email verified successfully"})
}

func (h *AuthHandlers) ResendVerification(c *gin.Context) {
	if err := h.auth.ResendVerification(c.Request.Context(), RequestFrom(c).Identity.UserID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Verification email sent"})
}

// GetUser returns an account to its owner or to an admin.
func (h *AuthHandlers) GetUser(c *gin.Context) {
	acc, err := h.auth.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": newUserView(acc)})
}

// SetUserStatus lets an admin activate or deactivate another account.
func (h *AuthHandlers) SetUserStatus(c *gin.Context) {
	var req struct {
		IsActive *bool `json:"isActive" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}

	acc, err := h.auth.SetAccountActive(c.Request.Context(), RequestFrom(c).Identity.UserID, c.Param("id"), *req.IsActive)
	if err != nil {
		h.fail(c, err)
		return
	}

	message := "User deactivated successfully"
	if acc.IsActive {
		message = "User activated successfully"
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": message, "user": newUserView(acc)})
}

func (h *AuthHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"status":    "ok",
		"timestamp": h.now().UTC(),
	})
}

// accountOwner loads the account named by the :id route parameter. An
// account is owned by itself.
func (h *AuthHandlers) accountOwner(ctx context.Context, req *service.Request) (service.Resource, error) {
	acc, err := h.auth.GetAccount(ctx, req.Params["id"])
	if err != nil {
		if errors.Is(err, core.ErrAccountNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return service.Resource{"id": acc.ID}, nil
}

func (h *AuthHandlers) setTokenCookie(c *gin.Context, tokens core.TokenPair) {
	maxAge := int(tokens.AccessExpiresAt.Sub(h.now()).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(TokenCookie, tokens.Access, maxAge, "/", h.cookie.Domain, h.cookie.Secure, true)
}

func (h *AuthHandlers) clearTokenCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(TokenCookie, "", -1, "/", h.cookie.Domain, h.cookie.Secure, true)
}
