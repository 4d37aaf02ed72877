package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rail-service/txengine/internal/api/handlers"
	"github.com/rail-service/txengine/internal/api/middleware"
	"github.com/rail-service/txengine/internal/infrastructure/database"
	"github.com/rail-service/txengine/internal/infrastructure/di"
	"github.com/rail-service/txengine/pkg/idempotency"
)

// SetupRoutes configures all application routes
func SetupRoutes(container *di.Container, version string) *gin.Engine {
	cfg := container.Config
	log := container.Logger

	router := gin.New()

	// Global middleware - order matters
	router.Use(middleware.Tracing())
	router.Use(middleware.RequestID())
	router.Use(middleware.Metrics())
	router.Use(middleware.RequestSizeLimit())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RateLimit(container.TieredRateLimiter, log))

	coreHandlers := handlers.NewCoreHandlers(map[string]handlers.Pinger{
		"database": handlers.PingFunc(func(ctx context.Context) error {
			return database.HealthCheck(ctx, container.DB)
		}),
		"redis": container.Redis,
	}, prometheus.DefaultGatherer, version, container.Clock)

	transactionHandlers := handlers.NewTransactionHandlers(container.Sessions, container.OrderPoller)
	sessionHandlers := handlers.NewSessionHandlers(handlers.SessionConfig{
		JWTSecret: cfg.JWT.Secret,
		JWTIssuer: cfg.JWT.Issuer,
		AccessTTL: cfg.JWT.AccessTTLDuration(),
		OTPIssuer: cfg.Security.OTPIssuer,
	},
		container.Credentials,
		container.NabuAuth,
		container.SessionRevocations,
		container.Sessions,
		container.KYC,
		container.AuthEvents,
		container.Clock,
		container.ZapLog,
	)
	kycHandlers := handlers.NewKYCHandlers(container.KYC, container.Clock)

	// Health checks (no auth required)
	router.GET("/health", coreHandlers.Health)
	router.GET("/ready", coreHandlers.Ready)
	router.GET("/live", coreHandlers.Live)
	router.GET("/metrics", coreHandlers.Metrics())

	v1 := router.Group("/api/v1")
	{
		v1.POST("/session/login", middleware.RateLimit(container.LoginRateLimiter, log), sessionHandlers.Login)

		protected := v1.Group("/")
		protected.Use(middleware.Authentication(cfg.JWT.Secret, container.SessionRevocations, log))
		{
			sessions := protected.Group("/session")
			{
				sessions.POST("/logout", sessionHandlers.Logout)
				sessions.POST("/otp", sessionHandlers.EnrollOTP)
			}

			transactions := protected.Group("/transactions")
			{
				transactions.POST("", transactionHandlers.Start)
				transactions.GET("/:id", transactionHandlers.Get)
				transactions.DELETE("/:id", transactionHandlers.Stop)
				transactions.PUT("/:id/amount", transactionHandlers.UpdateAmount)
				transactions.PUT("/:id/fee-level", transactionHandlers.UpdateFeeLevel)
				transactions.PUT("/:id/options", transactionHandlers.UpdateOption)
				transactions.PUT("/:id/target", transactionHandlers.Retarget)
				transactions.POST("/:id/confirmations", transactionHandlers.BuildConfirmations)
				transactions.POST("/:id/validate", transactionHandlers.Validate)
				transactions.GET("/:id/executions", transactionHandlers.Executions)
				transactions.POST("/:id/execute",
					idempotency.RequireIdempotency(),
					idempotency.Middleware(container.IdempotencyRepo, container.ZapLog),
					middleware.SecondFactor(
						middleware.SecondFactorConfig{Required: cfg.Security.RequireOTP},
						container.Credentials,
						container.OTPAttempts,
						container.Clock,
						log,
					),
					transactionHandlers.Execute,
				)
			}

			protected.GET("/orders/:id/settlement", transactionHandlers.Settlement)

			kyc := protected.Group("/kyc")
			{
				kyc.GET("/tiers", kycHandlers.Tiers)
				kyc.POST("/tiers/:tier/await", kycHandlers.AwaitTier)
				kyc.GET("/sdd", kycHandlers.DueDiligence)
			}
		}
	}

	return router
}
