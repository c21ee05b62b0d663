package logger

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger. Production uses JSON output, every other
// environment the colored development encoder.
func New(env, level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if !strings.EqualFold(env, "production") {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	return cfg.Build()
}

// RequestIDKey is used to store a request identifier on the context.
type RequestIDKey struct{}

// WithRequestID stores id on ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey{}, id)
}

// RequestID returns the identifier stored by WithRequestID, if any.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(RequestIDKey{}).(string); ok {
		return val
	}
	return ""
}

// WithContext attaches request scoped fields to lg.
func WithContext(ctx context.Context, lg *zap.Logger) *zap.Logger {
	if id := RequestID(ctx); id != "" {
		return lg.With(zap.String("request_id", id))
	}
	return lg
}

var emailRegex = regexp.MustCompile(`^([^@]{1,3})[^@]*(@.+)$`)

// MaskEmail masks email addresses, showing first 3 characters and domain
// Example: john.doe@example.com -> joh***@example.com
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	if matches := emailRegex.FindStringSubmatch(email); len(matches) == 3 {
		return matches[1] + "***" + matches[2]
	}
	return "***"
}

// MaskIP keeps the first two IPv4 octets or the first four IPv6 groups.
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}

	if strings.Contains(ip, ".") {
		if parts := strings.Split(ip, "."); len(parts) == 4 {
			return parts[0] + "." + parts[1] + ".*.*"
		}
	}
	if strings.Contains(ip, ":") {
		if parts := strings.Split(ip, ":"); len(parts) >= 4 {
			return strings.Join(parts[:4], ":") + ":*:*:*:*"
		}
	}
	return "***"
}
