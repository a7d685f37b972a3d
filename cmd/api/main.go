package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/account-security/internal/config"
	"github.com/jwalitptl/account-security/internal/email"
	accounthandler "github.com/jwalitptl/account-security/internal/handler/account"
	audithandler "github.com/jwalitptl/account-security/internal/handler/audit"
	authhandler "github.com/jwalitptl/account-security/internal/handler/auth"
	"github.com/jwalitptl/account-security/internal/handler/health"
	promhandler "github.com/jwalitptl/account-security/internal/handler/prometheus"
	"github.com/jwalitptl/account-security/internal/lockout"
	"github.com/jwalitptl/account-security/internal/middleware"
	"github.com/jwalitptl/account-security/internal/repository"
	"github.com/jwalitptl/account-security/internal/repository/memory"
	"github.com/jwalitptl/account-security/internal/repository/postgres"
	redisrepo "github.com/jwalitptl/account-security/internal/repository/redis"
	"github.com/jwalitptl/account-security/internal/router"
	accountService "github.com/jwalitptl/account-security/internal/service/account"
	auditService "github.com/jwalitptl/account-security/internal/service/audit"
	authService "github.com/jwalitptl/account-security/internal/service/auth"
	"github.com/jwalitptl/account-security/pkg/auth"
	"github.com/jwalitptl/account-security/pkg/logger"
	"github.com/jwalitptl/account-security/pkg/messaging"
	redisbroker "github.com/jwalitptl/account-security/pkg/messaging/redis"
	"github.com/jwalitptl/account-security/pkg/metrics"
	"github.com/jwalitptl/account-security/pkg/security"
)

type repositories struct {
	accounts    repository.AccountRepository
	resetTokens repository.ResetTokenRepository
	audits      repository.AuditRepository
}

func main() {
	configPath := flag.String("config", "", "directory containing config.yaml")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	zl := logger.NewLogger(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}).ZL
	log.Logger = zl

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg, cfg.Metrics.Namespace, "auth")

	var checks []health.Check

	var repos repositories
	switch cfg.Database.Driver {
	case "memory":
		zl.Warn().Msg("using in-memory storage, state is lost on restart")
		accounts := memory.NewAccountRepository()
		repos = repositories{
			accounts:    accounts,
			resetTokens: accounts.ResetTokens(),
			audits:      memory.NewAuditRepository(),
		}
	default:
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			zl.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
		repos = postgresRepositories(db)
		checks = append(checks, health.Check{Name: "database", Ping: db.PingContext})
	}

	blacklist := repository.TokenBlacklist(memory.NewTokenBlacklist())
	events := messaging.NopPublisher()
	if cfg.Redis.URL != "" {
		client, err := redisrepo.NewClient(ctx, cfg.Redis)
		if err != nil {
			// the blacklist must be shared across replicas, so a configured
			// but unreachable Redis is fatal
			zl.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer client.Close()

		blacklist = redisrepo.NewTokenBlacklist(client)
		broker := redisbroker.NewRedisBroker(client, zl)
		defer broker.Close()
		events = messaging.NewChannelPublisher(broker, cfg.Redis.EventsChannel)
		checks = append(checks, health.Check{Name: "redis", Ping: pingRedis(client)})
	} else {
		zl.Warn().Msg("redis disabled, revoked tokens are tracked per process")
	}

	tokens, err := auth.NewJWTService(auth.Config{
		Secret:        cfg.JWT.Secret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		Issuer:        cfg.JWT.Issuer,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
	})
	if err != nil {
		zl.Fatal().Err(err).Msg("failed to initialise token service")
	}

	hasher := security.NewBcryptHasher(cfg.Security.BcryptCost)
	strength := security.NewStrengthPolicy(cfg.Security.PasswordPolicy)
	auditor := auditService.NewService(repos.audits, zl, m)

	authSvc, err := authService.NewService(authService.Deps{
		Accounts:      repos.accounts,
		ResetTokens:   repos.resetTokens,
		Blacklist:     blacklist,
		Hasher:        hasher,
		Strength:      strength,
		Lockout:       lockout.NewPolicy(cfg.Security.LockoutBands),
		Tokens:        tokens,
		Email:         email.NewSMTPService(cfg.SMTP, cfg.Security.ResetURL),
		Auditor:       auditor,
		Events:        events,
		Metrics:       m,
		Logger:        zl,
		ResetTokenTTL: cfg.Security.ResetTokenTTL,
	})
	if err != nil {
		zl.Fatal().Err(err).Msg("failed to initialise auth service")
	}
	accountSvc := accountService.NewService(repos.accounts, hasher, strength, auditor, zl)

	if b := cfg.Bootstrap; b.AdminEmail != "" {
		if _, err := accountSvc.EnsureAdmin(ctx, uuid.MustParse(b.OrganizationID), b.AdminEmail, b.AdminName, b.AdminPassword); err != nil {
			zl.Fatal().Err(err).Msg("failed to bootstrap admin account")
		}
	}

	authMiddleware := middleware.NewAuthMiddleware(authSvc)
	asyncAudit := auditService.NewAsyncLogger(auditor)

	var limit rate.Limit
	if cfg.RateLimit.Enabled {
		limit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
	}

	r, err := router.NewRouter(
		authMiddleware,
		middleware.NewAuditMiddleware(asyncAudit),
		authhandler.NewHandler(authSvc),
		accounthandler.NewHandler(accountSvc, authMiddleware),
		audithandler.NewHandler(auditor, authMiddleware),
		health.NewHandler(reg, checks...),
		promhandler.New(reg, cfg.Metrics.Namespace),
		router.RouterConfig{
			RateLimit:      limit,
			RateBurst:      cfg.RateLimit.Burst,
			RateIdleExpiry: cfg.RateLimit.IdleExpiry,
			RequestTimeout: cfg.Server.RequestTimeout,
			CORSConfig:     middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins),
			TrustedProxies: cfg.Server.TrustedProxies,
		},
	)
	if err != nil {
		zl.Fatal().Err(err).Msg("failed to build router")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zl.Info().Str("addr", srv.Addr).Str("driver", cfg.Database.Driver).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	zl.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error().Err(err).Msg("server forced to shutdown")
	}
	asyncAudit.Close()

	zl.Info().Msg("server exited properly")
}

func postgresRepositories(db *sqlx.DB) repositories {
	base := postgres.NewBaseRepository(db)
	return repositories{
		accounts:    postgres.NewAccountRepository(base),
		resetTokens: postgres.NewResetTokenRepository(base),
		audits:      postgres.NewAuditRepository(base),
	}
}

func pingRedis(client *goredis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
