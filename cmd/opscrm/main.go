package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/opscrm/opscrm/internal/app"
	"github.com/opscrm/opscrm/internal/auth"
	"github.com/opscrm/opscrm/internal/observability"
	"github.com/opscrm/opscrm/internal/payroll/onetime"
	"github.com/opscrm/opscrm/internal/payroll/rates"
	"github.com/opscrm/opscrm/internal/payroll/registry"
	"github.com/opscrm/opscrm/internal/payroll/selfemployed"
	"github.com/opscrm/opscrm/internal/payroll/sheets"
	"github.com/opscrm/opscrm/internal/payroll/stats"
	"github.com/opscrm/opscrm/internal/platform/cache"
	"github.com/opscrm/opscrm/internal/platform/db"
	"github.com/opscrm/opscrm/internal/shared"
	"github.com/opscrm/opscrm/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, 20)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Warn("redis unavailable, stats cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	authMiddleware := auth.Middleware{Verifier: verifier, Logger: logger}

	auditLogger := shared.NewAuditLogger(dbpool)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	statsService := stats.NewService(stats.NewRepository(dbpool), stats.NewCache(redisClient, cfg.StatsCacheTTL), logger)
	sheetService := sheets.NewService(sheets.NewRepository(dbpool), approvalRecorder, auditLogger, jobClient, statsService, logger)
	oneTimeService := onetime.NewService(onetime.NewRepository(dbpool), idempotencyStore, approvalRecorder, auditLogger, jobClient, logger)
	registryService := registry.NewService(registry.NewRepository(dbpool), auditLogger, logger, cfg.OrgName)
	rateService := rates.NewService(rates.NewRepository(dbpool), auditLogger, statsService, logger)
	selfEmployedService := selfemployed.NewService(selfemployed.NewRepository(dbpool), auditLogger, logger)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		Auth:                authMiddleware,
		SheetsHandler:       sheets.NewHandler(logger, sheetService, authMiddleware),
		OneTimeHandler:      onetime.NewHandler(logger, oneTimeService, authMiddleware),
		RegistryHandler:     registry.NewHandler(logger, registryService, authMiddleware),
		RatesHandler:        rates.NewHandler(logger, rateService, authMiddleware),
		SelfEmployedHandler: selfemployed.NewHandler(logger, selfEmployedService, authMiddleware),
		StatsHandler:        stats.NewHandler(logger, statsService, authMiddleware),
		JobHandler:          jobs.NewHandler(inspector, logger),
		Database:            dbpool,
		Metrics:             observability.NewMetrics(),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
