package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "GATEKEEPER"

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Bcrypt    BcryptSettings    `mapstructure:"bcrypt"`
	Mail      MailSettings      `mapstructure:"mail"`
}

type AppSettings struct {
	Name         string `mapstructure:"name"`
	Env          string `mapstructure:"env"`
	Addr         string `mapstructure:"addr"`
	LogLevel     string `mapstructure:"log_level"`
	CookieSecure bool   `mapstructure:"cookie_secure"`
	CookieDomain string `mapstructure:"cookie_domain"`

	// TrustedProxies lists the IPs or CIDRs whose forwarding headers are
	// honored. Empty means the peer address is always the client address.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type JWTSettings struct {
	Secret          string        `mapstructure:"secret"`
	Issuer          string        `mapstructure:"issuer"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// RedisSettings enables the Redis denylist and stream publishers when URL is set.
type RedisSettings struct {
	URL          string `mapstructure:"url"`
	SessionTopic string `mapstructure:"session_topic"`
	MailTopic    string `mapstructure:"mail_topic"`
}

// PostgresSettings selects the Postgres account store when DSN is set.
type PostgresSettings struct {
	DSN     string `mapstructure:"dsn"`
	Migrate bool   `mapstructure:"migrate"`
}

type RateLimitSettings struct {
	SensitiveWindow      time.Duration `mapstructure:"sensitive_window"`
	SensitiveMaxAttempts int           `mapstructure:"sensitive_max_attempts"`
	AuthPerMinute        int           `mapstructure:"auth_per_minute"`
	AuthBurst            int           `mapstructure:"auth_burst"`
}

type BcryptSettings struct {
	Cost int `mapstructure:"cost"`
}

type MailSettings struct {
	From   string `mapstructure:"from"`
	AppURL string `mapstructure:"app_url"`
}

// IsProduction reports whether the service runs in production.
func (c *AppConfig) IsProduction() bool {
	return strings.EqualFold(c.App.Env, "production")
}

// Validate rejects settings the service cannot start with.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.IsProduction() && c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required in production"))
	}
	if c.JWT.Secret != "" && len(c.JWT.Secret) < 32 {
		errs = append(errs, errors.New("jwt.secret must be at least 32 bytes"))
	}
	if c.JWT.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("jwt.access_token_ttl must be positive"))
	}
	if c.JWT.RefreshTokenTTL <= c.JWT.AccessTokenTTL {
		errs = append(errs, errors.New("jwt.refresh_token_ttl must exceed jwt.access_token_ttl"))
	}
	if c.RateLimit.SensitiveWindow <= 0 || c.RateLimit.SensitiveMaxAttempts <= 0 {
		errs = append(errs, errors.New("rate_limit sensitive window and max attempts must be positive"))
	}
	if c.App.Addr == "" {
		errs = append(errs, errors.New("app.addr is required"))
	}
	for _, proxy := range c.App.TrustedProxies {
		if !validProxy(proxy) {
			errs = append(errs, fmt.Errorf("app.trusted_proxies: invalid IP or CIDR %q", proxy))
		}
	}
	return errors.Join(errs...)
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.addr",
		"app.log_level",
		"app.cookie_secure",
		"app.cookie_domain",
		"app.trusted_proxies",
		"jwt.secret",
		"jwt.issuer",
		"jwt.access_token_ttl",
		"jwt.refresh_token_ttl",
		"redis.url",
		"redis.session_topic",
		"redis.mail_topic",
		"postgres.dsn",
		"postgres.migrate",
		"rate_limit.sensitive_window",
		"rate_limit.sensitive_max_attempts",
		"rate_limit.auth_per_minute",
		"rate_limit.auth_burst",
		"bcrypt.cost",
		"mail.from",
		"mail.app_url",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "gatekeeper")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.addr", ":8080")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.cookie_secure", false)
	v.SetDefault("app.cookie_domain", "")
	v.SetDefault("app.trusted_proxies", []string{})

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "gatekeeper")
	v.SetDefault("jwt.access_token_ttl", "15m")
	v.SetDefault("jwt.refresh_token_ttl", "168h")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.session_topic", "gatekeeper.session")
	v.SetDefault("redis.mail_topic", "gatekeeper.mail")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.migrate", true)

	v.SetDefault("rate_limit.sensitive_window", "15m")
	v.SetDefault("rate_limit.sensitive_max_attempts", 3)
	v.SetDefault("rate_limit.auth_per_minute", 10)
	v.SetDefault("rate_limit.auth_burst", 5)

	v.SetDefault("bcrypt.cost", 12)

	v.SetDefault("mail.from", "no-reply@gatekeeper.local")
	v.SetDefault("mail.app_url", "http://localhost:3000")
}

func validProxy(proxy string) bool {
	if strings.Contains(proxy, "/") {
		_, _, err := net.ParseCIDR(proxy)
		return err == nil
	}
	return net.ParseIP(proxy) != nil
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envPrefix+"_"+envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
