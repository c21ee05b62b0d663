package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/layer-3/gatekeeper/adapters/events"
	"github.com/layer-3/gatekeeper/adapters/hasher"
	"github.com/layer-3/gatekeeper/adapters/limiter"
	"github.com/layer-3/gatekeeper/adapters/mail"
	"github.com/layer-3/gatekeeper/adapters/store"
	"github.com/layer-3/gatekeeper/adapters/tokenizer"
	"github.com/layer-3/gatekeeper/adapters/users"
	"github.com/layer-3/gatekeeper/internal/config"
	"github.com/layer-3/gatekeeper/internal/logger"
	"github.com/layer-3/gatekeeper/internal/metrics"
	"github.com/layer-3/gatekeeper/ports"
	"github.com/layer-3/gatekeeper/service"
	transport "github.com/layer-3/gatekeeper/transport/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		lg.Fatal("gatekeeper stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.AppConfig, lg *zap.Logger) error {
	secret := []byte(cfg.JWT.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return err
		}
		lg.Warn("jwt.secret not set, using an ephemeral secret; tokens will not survive a restart")
	}

	tok, err := tokenizer.NewJWTTokenizer(tokenizer.Config{
		Secret:     secret,
		Issuer:     cfg.JWT.Issuer,
		AccessTTL:  cfg.JWT.AccessTokenTTL,
		RefreshTTL: cfg.JWT.RefreshTokenTTL,
	})
	if err != nil {
		return err
	}

	wmLogger := events.NewZapLogger(lg.Named("watermill"))

	var (
		denylist  ports.Denylist
		publisher message.Publisher
		mailer    ports.EmailSender
	)
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return err
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}

		publisher, err = redisstream.NewPublisher(redisstream.PublisherConfig{Client: redisClient}, wmLogger)
		if err != nil {
			return err
		}
		denylist = store.NewRedisStore(redisClient)
		mailer = mail.NewStreamSender(publisher).WithTopic(cfg.Redis.MailTopic).WithFrom(cfg.Mail.From)
	} else {
		publisher = gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
		denylist = store.NewMemoryStore()
		mailer = mail.NewLogSender(lg.Named("mail"))
	}
	defer publisher.Close()

	var accounts ports.UserStore = users.NewMemoryStore()
	if cfg.Postgres.DSN != "" {
		db, err := users.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer func(db *sql.DB) { _ = db.Close() }(db)

		if cfg.Postgres.Migrate {
			if err := users.Migrate(ctx, db); err != nil {
				return err
			}
		}
		accounts = users.NewPostgresStore(db)
	} else {
		lg.Warn("postgres.dsn not set, accounts are kept in memory")
	}

	window := limiter.NewSlidingWindow(lg.Named("limiter"))
	go window.Run(ctx)

	throttle := transport.NewThrottle(cfg.RateLimit.AuthPerMinute, cfg.RateLimit.AuthBurst)
	go throttle.Run(ctx)

	authService := service.NewAuthService(
		tok,
		accounts,
		hasher.NewBcrypt(cfg.Bcrypt.Cost),
		mailer,
		events.NewWatermillPublisher(publisher).WithTopic(cfg.Redis.SessionTopic),
		service.AuthConfig{AppURL: cfg.Mail.AppURL},
		lg.Named("auth"),
	).WithDenylist(denylist)

	guard := service.NewGuard(tok, accounts, window, lg.Named("guard")).
		WithDenylist(denylist).
		WithSensitiveLimit(cfg.RateLimit.SensitiveWindow, cfg.RateLimit.SensitiveMaxAttempts)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := transport.SetupRouter(transport.RouterConfig{
		Auth:           authService,
		Guard:          guard,
		Logger:         lg,
		Metrics:        metrics.NewCollector(registry),
		Gatherer:       registry,
		Throttle:       throttle,
		TrustedProxies: cfg.App.TrustedProxies,
		Cookie: transport.CookieConfig{
			Secure: cfg.App.CookieSecure,
			Domain: cfg.App.CookieDomain,
		},
	})

	srv := &http.Server{
		Addr:              cfg.App.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("gatekeeper listening", zap.String("addr", cfg.App.Addr), zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
