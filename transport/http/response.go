package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/layer-3/gatekeeper/core"
	"github.com/layer-3/gatekeeper/internal/logger"
	"go.uber.org/zap"
)

const (
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeTokenRevoked       = "TOKEN_REVOKED"
	CodeAccountDeactivated = "ACCOUNT_DEACTIVATED"
	CodeAccountLocked      = "ACCOUNT_LOCKED"
	CodeEmailNotVerified   = "EMAIL_NOT_VERIFIED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeRateLimited        = "RATE_LIMITED"
	CodeValidation         = "VALIDATION_ERROR"
)

// Recorder receives request and authentication metrics.
type Recorder interface {
	ObserveRequest(method, route string, status int, duration time.Duration)
	RecordRejection(status int, code string)
	RecordAuthEvent(event, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRequest(string, string, int, time.Duration) {}
func (nopRecorder) RecordRejection(int, string)                       {}
func (nopRecorder) RecordAuthEvent(string, string)                    {}

// errorCase maps a core error to a response.
type errorCase struct {
	Err     error
	Status  int
	Message string
	Code    string
}

// Order matters: token failures wrap ErrUnauthenticated, so they come first.
var defaultErrorCases = []errorCase{
	{core.ErrTokenExpired, http.StatusUnauthorized, "Token expired", CodeTokenExpired},
	{core.ErrTokenMalformed, http.StatusUnauthorized, "Invalid token", CodeInvalidToken},
	{core.ErrWrongTokenKind, http.StatusUnauthorized, "Invalid token", CodeInvalidToken},
	{core.ErrTokenRevoked, http.StatusUnauthorized, "Token has been revoked", CodeTokenRevoked},
	{core.ErrAccountDeactivated, http.StatusUnauthorized, "User account has been deactivated", CodeAccountDeactivated},
	{core.ErrAccountLocked, http.StatusLocked, "Account is temporarily locked due to too many failed login attempts", CodeAccountLocked},
	{core.ErrUnauthenticated, http.StatusUnauthorized, "Not authorized to access this route", ""},
	{core.ErrEmailNotVerified, http.StatusForbidden, "Email verification required to perform this action", CodeEmailNotVerified},
	{core.ErrForbidden, http.StatusForbidden, "Not authorized to access this resource", ""},
	{core.ErrNotFound, http.StatusNotFound, "Resource not found", ""},
	{core.ErrAccountNotFound, http.StatusNotFound, "User not found", ""},
	{core.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid credentials", CodeInvalidCredentials},
	{core.ErrEmailTaken, http.StatusConflict, "User already exists with this email", ""},
	{core.ErrEmailAlreadyVerified, http.StatusBadRequest, "Email is already verified", ""},
	{core.ErrInvalidVerificationToken, http.StatusBadRequest, "Invalid or expired verification token", ""},
	{core.ErrInvalidResetToken, http.StatusBadRequest, "Invalid or expired reset token", ""},
	{core.ErrSelfStatusChange, http.StatusBadRequest, "Cannot change your own account status", ""},
	{core.ErrInvalidInput, http.StatusBadRequest, "Validation failed", CodeValidation},
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// responder writes the JSON envelope shared by every endpoint.
type responder struct {
	logger  *zap.Logger
	metrics Recorder
}

func newResponder(lg *zap.Logger, rec Recorder) *responder {
	if lg == nil {
		lg = zap.NewNop()
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &responder{logger: lg, metrics: rec}
}

// fail aborts the request with the response for err. Handler specific
// cases take precedence over the defaults.
func (r *responder) fail(c *gin.Context, err error, cases ...errorCase) {
	var limited *core.RateLimitError
	if errors.As(err, &limited) {
		r.rateLimited(c, limited.RetryAfter, "Too many sensitive operations. Please try again later.")
		return
	}

	for _, ec := range cases {
		if errors.Is(err, ec.Err) {
			r.abort(c, ec.Status, ec.Message, ec.Code)
			return
		}
	}

	var forbidden *core.ForbiddenError
	if errors.As(err, &forbidden) {
		r.abort(c, http.StatusForbidden, forbidden.Reason, "")
		return
	}

	for _, ec := range defaultErrorCases {
		if errors.Is(err, ec.Err) {
			r.abort(c, ec.Status, ec.Message, ec.Code)
			return
		}
	}

	logger.WithContext(c.Request.Context(), r.logger).Error("request failed",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	r.abort(c, http.StatusInternalServerError, "Server error", "")
}

func (r *responder) abort(c *gin.Context, status int, message, code string) {
	body := gin.H{"success": false, "message": message}
	if code != "" {
		body["code"] = code
	}
	r.metrics.RecordRejection(status, code)
	c.AbortWithStatusJSON(status, body)
}

func (r *responder) rateLimited(c *gin.Context, retryAfter int, message string) {
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	r.metrics.RecordRejection(http.StatusTooManyRequests, CodeRateLimited)
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"success":    false,
		"message":    message,
		"retryAfter": retryAfter,
	})
}

// invalid reports a request body that failed binding.
func (r *responder) invalid(c *gin.Context, err error) {
	var fields []fieldError

	var verrs validator.ValidationErrors
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &verrs):
		for _, fe := range verrs {
			fields = append(fields, fieldError{Field: jsonName(fe.Field()), Message: validationMessage(fe)})
		}
	case errors.As(err, &typeErr):
		fields = append(fields, fieldError{Field: typeErr.Field, Message: "has the wrong type"})
	case errors.As(err, &syntaxErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		fields = append(fields, fieldError{Field: "body", Message: "must be a valid JSON object"})
	default:
		fields = append(fields, fieldError{Field: "body", Message: err.Error()})
	}

	r.metrics.RecordRejection(http.StatusBadRequest, CodeValidation)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"success": false,
		"message": "Validation failed",
		"code":    CodeValidation,
		"errors":  fields,
	})
}

func jsonName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

func validationMessage(fe validator.FieldError) string {
	name := jsonName(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", name)
	case "email":
		return "Please provide a valid email"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", name, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", name, fe.Param())
	case "hexadecimal":
		return fmt.Sprintf("%s must be hexadecimal", name)
	}
	return fmt.Sprintf("%s is invalid", name)
}
