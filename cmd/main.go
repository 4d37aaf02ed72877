package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rail-service/txengine/internal/api/routes"
	"github.com/rail-service/txengine/internal/infrastructure/cache"
	"github.com/rail-service/txengine/internal/infrastructure/config"
	"github.com/rail-service/txengine/internal/infrastructure/database"
	"github.com/rail-service/txengine/internal/infrastructure/di"
	"github.com/rail-service/txengine/internal/workers/fee_warmer"
	"github.com/rail-service/txengine/internal/workers/session_cleanup"
	"github.com/rail-service/txengine/pkg/graceful"
	"github.com/rail-service/txengine/pkg/logger"
	"github.com/rail-service/txengine/pkg/metrics"
	"github.com/rail-service/txengine/pkg/tracing"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer func() { _ = log.Sync() }()

	// Initialize OpenTelemetry tracing
	tracingShutdown, err := tracing.InitTracer(context.Background(), tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		CollectorURL: cfg.Tracing.CollectorURL,
		Environment:  cfg.Environment,
		SampleRate:   cfg.Tracing.SampleRate,
		Insecure:     cfg.Tracing.Insecure,
	}, log.Zap())
	if err != nil {
		log.Fatal("Failed to initialize tracing", "error", err)
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Fatal("Failed to register metrics", "error", err)
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}

	if err := database.RunMigrations(db, cfg.Database.MigrationsPath); err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}

	redis, err := cache.NewRedisClient(cfg.Redis, log.Zap())
	if err != nil {
		log.Fatal("Failed to connect to redis", "error", err)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	container, err := di.NewContainer(cfg, db, redis, log)
	if err != nil {
		log.Fatal("Failed to create DI container", "error", err)
	}

	router := routes.SetupRoutes(container, version)

	// Background workers
	targets, err := fee_warmer.ParseTargets(cfg.Workers.FeeWarmerAssets)
	if err != nil {
		log.Fatal("Invalid fee warmer assets", "error", err)
	}
	feeWarmer := fee_warmer.NewWorker(container.Fees, targets, cfg.Workers.FeeWarmerSchedule, log.Zap())
	if err := feeWarmer.Start(); err != nil {
		log.Fatal("Failed to start fee warmer", "error", err)
	}

	cleanup := session_cleanup.NewWorker(container.Sessions, container.IdempotencyRepo,
		session_cleanup.DefaultSchedules(), log.Zap())
	if err := cleanup.Start(); err != nil {
		log.Fatal("Failed to start session cleanup worker", "error", err)
	}

	server := &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	go func() {
		log.Info("Starting server",
			"port", cfg.Server.Port,
			"environment", cfg.Environment,
			"version", version,
			"native_wallet", cfg.Features.NativeWalletEnabled,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", "error", err)
		}
	}()

	// Workers stop before the server, tracing flushes last
	shutdown := graceful.NewShutdownManager(server, log, db, redis)
	shutdown.Register(graceful.ShutdownFunc(feeWarmer.Stop))
	shutdown.Register(graceful.ShutdownFunc(cleanup.Stop))
	shutdown.WaitForShutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracingShutdown(ctx); err != nil {
		log.Warn("Failed to flush traces", "error", err)
	}
}
