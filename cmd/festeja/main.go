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
	"github.com/redis/go-redis/v9"

	"github.com/festeja/festeja/internal/app"
	"github.com/festeja/festeja/internal/audit"
	"github.com/festeja/festeja/internal/identity"
	"github.com/festeja/festeja/internal/observability"
	"github.com/festeja/festeja/internal/platform/cache"
	"github.com/festeja/festeja/internal/platform/db"
	"github.com/festeja/festeja/internal/security"
	"github.com/festeja/festeja/internal/store"
	"github.com/festeja/festeja/jobs"
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
		logger.Warn("redis ping", slog.Any("error", err))
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	gateway := store.NewPostgresGateway(dbpool)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()
	recorder := audit.NewRecorder(asynqClient, logger)

	profiles := identity.NewProfileResolver(gateway)
	resolver := identity.NewCachedResolver(profiles, redisClient, cfg.IdentityCacheTTL, logger)
	tokens := identity.NewTokenResolver(cfg.AuthSecret)

	metrics := observability.NewMetrics()

	permissionService := security.NewPermissionService(gateway, logger, recorder)
	roleService := security.NewRoleService(gateway, logger, recorder)
	grantService := security.NewRolePermissionService(gateway, roleService, permissionService, logger, recorder)
	assignmentService := security.NewUserRoleService(gateway, roleService, logger, recorder)
	accessService := security.NewAccessService(resolver, assignmentService, gateway, logger)
	guard := security.Middleware{Access: accessService, Logger: logger, Metrics: metrics}
	securityHandler := security.NewHandler(logger, permissionService, roleService, grantService, assignmentService, accessService, guard)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Identity:        tokens,
		SecurityHandler: securityHandler,
		JobHandler:      jobHandler,
		Metrics:         metrics,
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
