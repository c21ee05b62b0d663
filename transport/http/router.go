package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/gatekeeper/core"
	"github.com/layer-3/gatekeeper/internal/metrics"
	"github.com/layer-3/gatekeeper/service"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// RouterConfig holds everything SetupRouter wires together. Metrics,
// Gatherer and Throttle are optional.
type RouterConfig struct {
	Auth           *service.AuthService
	Guard          *service.Guard
	Logger         *zap.Logger
	Metrics        Recorder
	Gatherer       prometheus.Gatherer
	Throttle       *Throttle
	Cookie         CookieConfig
	// TrustedProxies may set X-Forwarded-For. Empty trusts no proxy.
	TrustedProxies []string
	// Now is the clock used for cookie lifetimes, defaults to time.Now.
	Now            func() time.Time
}

// SetupRouter sets up the Gin router
func SetupRouter(cfg RouterConfig) *gin.Engine {
	lg := cfg.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	rec := cfg.Metrics
	if rec == nil {
		rec = nopRecorder{}
	}

	router := gin.New()
	if err := trustProxies(router, cfg.TrustedProxies); err != nil {
		lg.Error("invalid trusted proxies, trusting none", zap.Error(err))
	}
	router.Use(gin.Recovery(), RequestID(), RequestLogger(lg), Metrics(rec))

	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(cfg.Gatherer)))
	}

	handlers := NewAuthHandlers(cfg.Auth, cfg.Cookie, lg, rec)
	if cfg.Now != nil {
		handlers.now = cfg.Now
	}
	gates := NewGateMiddleware(lg, rec)
	guard := cfg.Guard

	throttled := func(c *gin.Context) { c.Next() }
	if cfg.Throttle != nil {
		throttled = throttleMiddleware(cfg.Throttle, handlers.responder)
	}

	// Public routes
	auth := router.Group("/api/auth")
	{
		auth.GET("/health", handlers.Health)
		auth.POST("/register", throttled, handlers.Register)
		auth.POST("/login", throttled, handlers.Login)
		auth.POST("/forgot-password", throttled, handlers.ForgotPassword)
		auth.POST("/refresh-token", handlers.Refresh)
		auth.PUT("/reset-password/:token", throttled, handlers.ResetPassword)
		auth.GET("/verify-email/:token", handlers.VerifyEmail)
		auth.GET("/session", gates.Require(guard.OptionalAuthenticate()), handlers.Session)
	}

	// Protected routes
	protected := router.Group("/api/auth")
	protected.Use(gates.Require(guard.Authenticate()))
	{
		protected.POST("/logout", handlers.Logout)
		protected.GET("/me", handlers.Me)
		protected.PUT("/profile", handlers.UpdateProfile)
		protected.PUT("/change-password", gates.Require(guard.LimitSensitiveOperation()), handlers.ChangePassword)
		protected.POST("/resend-verification", gates.Require(guard.LimitSensitiveOperation()), handlers.ResendVerification)
		protected.GET("/users/:id", gates.Require(guard.RequireOwnership("id", handlers.accountOwner)), handlers.GetUser)
		protected.PUT("/users/:id/status",
			gates.Require(guard.RequireRole(core.RoleAdmin), guard.RequireVerifiedEmail()),
			handlers.SetUserStatus,
		)
	}

	return router
}

// trustProxies limits which peers may dictate the client address used in
// rate limit keys. On error no proxy is trusted.
func trustProxies(router *gin.Engine, proxies []string) error {
	if len(proxies) == 0 {
		return router.SetTrustedProxies(nil)
	}
	if err := router.SetTrustedProxies(proxies); err != nil {
		_ = router.SetTrustedProxies(nil)
		return err
	}
	return nil
}
