package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gatekeeper", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, ":8080", cfg.App.Addr)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshTokenTTL)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.SensitiveWindow)
	assert.Equal(t, 3, cfg.RateLimit.SensitiveMaxAttempts)
	assert.Equal(t, 12, cfg.Bcrypt.Cost)
	assert.True(t, cfg.Postgres.Migrate)
	assert.Empty(t, cfg.Redis.URL)
	assert.Empty(t, cfg.App.TrustedProxies)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GATEKEEPER_APP_ENV", "production")
	t.Setenv("GATEKEEPER_APP_ADDR", ":9090")
	t.Setenv("GATEKEEPER_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("GATEKEEPER_JWT_ACCESS_TOKEN_TTL", "5m")
	t.Setenv("GATEKEEPER_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("GATEKEEPER_RATE_LIMIT_SENSITIVE_MAX_ATTEMPTS", "5")
	t.Setenv("GATEKEEPER_APP_COOKIE_SECURE", "true")
	t.Setenv("GATEKEEPER_APP_TRUSTED_PROXIES", "10.0.0.1,172.16.0.0/12")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, ":9090", cfg.App.Addr)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.JWT.Secret)
	assert.Equal(t, 5*time.Minute, cfg.JWT.AccessTokenTTL)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, 5, cfg.RateLimit.SensitiveMaxAttempts)
	assert.True(t, cfg.App.CookieSecure)
	assert.Equal(t, []string{"10.0.0.1", "172.16.0.0/12"}, cfg.App.TrustedProxies)
}

func TestLoad_ProductionRequiresSecret(t *testing.T) {
	t.Setenv("GATEKEEPER_APP_ENV", "production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt.secret is required")
}

func TestValidate(t *testing.T) {
	valid := func() *AppConfig {
		return &AppConfig{
			App: AppSettings{Env: "development", Addr: ":8080"},
			JWT: JWTSettings{AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour},
			RateLimit: RateLimitSettings{
				SensitiveWindow:      time.Minute,
				SensitiveMaxAttempts: 3,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*AppConfig) {}},
		{name: "short secret", mutate: func(c *AppConfig) { c.JWT.Secret = "short" }, wantErr: "at least 32 bytes"},
		{name: "refresh not longer than access", mutate: func(c *AppConfig) { c.JWT.RefreshTokenTTL = time.Minute }, wantErr: "must exceed"},
		{name: "no limiter attempts", mutate: func(c *AppConfig) { c.RateLimit.SensitiveMaxAttempts = 0 }, wantErr: "rate_limit"},
		{name: "no addr", mutate: func(c *AppConfig) { c.App.Addr = "" }, wantErr: "app.addr"},
		{name: "trusted proxies", mutate: func(c *AppConfig) { c.App.TrustedProxies = []string{"10.0.0.1", "::1", "10.0.0.0/8"} }},
		{name: "bad trusted proxy", mutate: func(c *AppConfig) { c.App.TrustedProxies = []string{"10.0.0.0/99"} }, wantErr: "app.trusted_proxies"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
