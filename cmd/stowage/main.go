package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/stowagehq/stowage/internal/app"
	"github.com/stowagehq/stowage/internal/audit"
	"github.com/stowagehq/stowage/internal/auth"
	"github.com/stowagehq/stowage/internal/authz"
	"github.com/stowagehq/stowage/internal/grants"
	"github.com/stowagehq/stowage/internal/observability"
	"github.com/stowagehq/stowage/internal/platform/cache"
	"github.com/stowagehq/stowage/internal/platform/db"
	"github.com/stowagehq/stowage/internal/policy"
	"github.com/stowagehq/stowage/internal/shared"
	"github.com/stowagehq/stowage/internal/storage"
	"github.com/stowagehq/stowage/internal/users"
	"github.com/stowagehq/stowage/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	tokens := shared.NewTokenManager(redisClient, "stowage_token", cfg.TokenTTL)

	policyRepo := policy.NewRepository(dbpool)
	enforcer := policy.NewEnforcer(policyRepo)

	usersRepo := users.NewRepository(dbpool)
	grantsRepo := grants.NewRepository(dbpool)
	storageRepo := storage.NewRepository(dbpool)

	grantsService := grants.NewService(grantsRepo, storageRepo, usersRepo)
	storageService := storage.NewService(storageRepo, grantsService)
	usersService := users.NewService(usersRepo, policyRepo, grantsService)

	metrics := observability.NewMetrics()

	queue, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue close", slog.Any("error", err))
		}
	}()
	decisionLog := audit.NewEnqueuer(queue, logger)

	authorizer := authz.NewAuthorizer(enforcer, policyRepo, grantsService,
		authz.MultiRecorder{metrics, decisionLog})
	guard := authz.Middleware{Authorizer: authorizer, Logger: logger}

	authService := auth.NewService(usersRepo, policyRepo)
	authHandler := auth.NewHandler(logger, authService, tokens)

	usersHandler := users.NewHandler(logger, usersService, guard)
	storageHandler := storage.NewHandler(logger, storageService, guard)
	grantsHandler := grants.NewHandler(logger, grantsService, guard)
	policyHandler := policy.NewHandler(logger, policyRepo, guard)
	auditHandler := audit.NewHandler(logger, audit.NewRepository(dbpool), guard)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Identity:       auth.Middleware(tokens, logger),
		AuthHandler:    authHandler,
		UsersHandler:   usersHandler,
		StorageHandler: storageHandler,
		GrantsHandler:  grantsHandler,
		PolicyHandler:  policyHandler,
		AuditHandler:   auditHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
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
