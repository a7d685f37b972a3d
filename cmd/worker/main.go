package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/account-security/internal/config"
	"github.com/jwalitptl/account-security/internal/email"
	"github.com/jwalitptl/account-security/internal/repository/postgres"
	redisrepo "github.com/jwalitptl/account-security/internal/repository/redis"
	"github.com/jwalitptl/account-security/internal/worker"
	"github.com/jwalitptl/account-security/pkg/logger"
	redisbroker "github.com/jwalitptl/account-security/pkg/messaging/redis"
	"github.com/jwalitptl/account-security/pkg/metrics"
)

func setupHealthCheck(addr string, reg *prometheus.Registry, zl zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/health/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error().Err(err).Msg("health check server failed")
		}
	}()
	return srv
}

func main() {
	configPath := flag.String("config", "", "directory containing config.yaml")
	healthAddr := flag.String("health-addr", ":8081", "listen address for health and metrics")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	zl := logger.NewLogger(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}).ZL.With().Str("service", "worker").Logger()
	log.Logger = zl

	if cfg.Database.Driver != "postgres" {
		zl.Fatal().Str("driver", cfg.Database.Driver).Msg("worker requires the postgres driver")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.NewMetrics(reg, cfg.Metrics.Namespace, "worker")

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		zl.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	auditRepo := postgres.NewAuditRepository(postgres.NewBaseRepository(db))

	var wg sync.WaitGroup

	cleanup := worker.NewAuditCleanupWorker(auditRepo, cfg.Audit.RetentionDays, cfg.Audit.CleanupInterval, zl, m)
	wg.Add(1)
	go func() {
		defer wg.Done()
		cleanup.Start(ctx)
	}()

	if cfg.Redis.URL != "" {
		client, err := redisrepo.NewClient(ctx, cfg.Redis)
		if err != nil {
			zl.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer client.Close()

		broker := redisbroker.NewRedisBroker(client, zl)
		defer broker.Close()

		notifier := worker.NewLockoutNotifier(broker, cfg.Redis.EventsChannel,
			email.NewSMTPService(cfg.SMTP, cfg.Security.ResetURL), zl, m)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := notifier.Start(ctx); err != nil {
				zl.Error().Err(err).Msg("lockout notifier exited")
			}
		}()
	} else {
		zl.Warn().Msg("redis disabled, lockout notices will not be sent")
	}

	health := setupHealthCheck(*healthAddr, reg, zl)

	<-ctx.Done()
	zl.Info().Msg("shutting down...")

	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := health.Shutdown(shutdownCtx); err != nil {
		zl.Error().Err(err).Str("addr", *healthAddr).Msg("health server shutdown failed")
	}
}
