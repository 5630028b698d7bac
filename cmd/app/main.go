package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"premium-access/internal/config"
	"premium-access/internal/domain"
	"premium-access/internal/domain/model"
	pg "premium-access/internal/infra/db/postgres"
	"premium-access/internal/infra/logging"
	"premium-access/internal/infra/metrics"
	red "premium-access/internal/infra/redis"
	"premium-access/internal/infra/sched"
	"premium-access/internal/infra/web"
	"premium-access/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("developer mode enabled")
	}

	catalog, err := cfg.PlanCatalog()
	if err != nil {
		logger.Fatal().Err(err).Msg("plan catalog")
	}

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	rateLimiter := red.NewRateLimiter(redisClient)

	// ---- Repositories ----
	codeRepo := pg.NewPremiumCodeRepo(pool)
	sessionRepo := pg.NewSessionRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Use cases ----
	codeUC := usecase.NewCodeUseCase(codeRepo, catalog, txManager, domain.RealClock, logger)
	entitleUC := usecase.NewEntitlementUseCase(codeUC, domain.RealClock, logger)
	sessionUC := usecase.NewSessionUseCase(sessionRepo, cfg.Session.StaleAfter, domain.RealClock, logger)

	policy := usecase.FallbackPolicy{}
	if cfg.Admission.FallbackPolicy == "allow" {
		policy.Admit = true
		policy.MaxDevices = cfg.Admission.FallbackMaxDevices
	} else {
		policy.MaxDevices = model.UnlimitedDevices // unused when rejecting
	}
	admissionUC := usecase.NewAdmissionUseCase(entitleUC, sessionRepo, catalog, locker, policy, cfg.Session.StaleAfter, domain.RealClock, logger)

	// ---- Metrics ----
	metrics.MustRegister()

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.Admin.JWTSecret, !cfg.Runtime.Dev, cfg.Admin.CookieDomain, cfg.Admin.SessionTTL)
	server := web.NewServer(codeUC, entitleUC, sessionUC, admissionUC, rateLimiter, cfg.Admission.RateLimitPerMinute, auth, cfg.Admin.APIKey, cfg.Admin.Password, logger)
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Admin.Port),
		Handler: server.Router(),
	}

	go func() {
		logger.Info().Int("port", cfg.Admin.Port).Msg("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// ---- Background workers ----
	reapInterval := cfg.Session.ReapInterval
	if reapInterval <= 0 {
		reapInterval = 5 * time.Minute
	}
	reaper := sched.NewReaperWorker(reapInterval, sessionUC, logger)
	go func() {
		if err := reaper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("reaper stopped")
		}
	}()

	// ---- Shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Info().Str("signal", s.String()).Msg("shutting down")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	logger.Info().Msg("bye")
}
