package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mr-tron/base58"

	rediscache "solock-backend/internal/cache/redis"
	"solock-backend/internal/common/config"
	"solock-backend/internal/common/logger"
	"solock-backend/internal/common/middleware"
	attendancehttp "solock-backend/internal/features/attendance/delivery/http"
	"solock-backend/internal/features/attendance/derive"
	"solock-backend/internal/features/attendance/leaderboard"
	"solock-backend/internal/features/attendance/ops"
	"solock-backend/internal/features/attendance/reconcile"
	"solock-backend/internal/features/attendance/service"
	"solock-backend/internal/features/attendance/submit"
	"solock-backend/internal/platform/ledger"
	redisplatform "solock-backend/internal/platform/redis"
	"solock-backend/internal/platform/signer"
)

func main() {
	cfg := config.Load()
	logger.Init("solock-backend", cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	programID, err := derive.Parse(cfg.Ledger.ProgramID)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid LEDGER_PROGRAM_ID")
	}
	deriver := derive.NewDeriver(programID)

	rdb, err := redisplatform.Open(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	logger.Info().Msg("Redis connection established")

	signerProvider := buildSigner(cfg)
	gateway := buildGateway(cfg, deriver, signerProvider)

	builder := ops.NewBuilder(deriver)
	submitter := submit.NewSubmitter(gateway, signerProvider, submit.Config{
		ConfirmRounds:  cfg.Ledger.ConfirmRounds,
		ConfirmSpacing: cfg.Ledger.ConfirmSpacing,
	}, logger.Component("submitter"))
	reconciler := reconcile.NewReconciler(gateway, deriver, reconcile.Config{
		Retries: cfg.Reconcile.Retries,
		Backoff: cfg.Reconcile.Backoff,
	}, logger.Component("reconciler"))

	leaderboardCache := rediscache.NewLeaderboardCache(rdb, cfg.Leaderboard.CacheTTL)
	projector := leaderboard.NewProjector(gateway, leaderboardCache, logger.Component("leaderboard"))

	// The periodic reconciliation loop runs only while an identity is active.
	var session *reconcile.Session
	if identity, err := signerProvider.Identity(); err == nil {
		session = reconcile.NewSession(identity, reconciler, cfg.Reconcile.Interval, logger.Component("session"))
		session.Start()
		defer session.Stop()
	} else {
		logger.Warn().Msg("No identity attached, state-changing operations are unavailable")
	}

	svc := service.NewAttendanceService(
		signerProvider, deriver, builder, submitter, reconciler,
		projector, gateway, session, logger.Component("attendance"),
	)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorHandler(logger.Component("http")))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Server.Origin}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Accept", "X-Request-ID"}
	router.Use(cors.New(corsConfig))

	v1 := router.Group("/api/v1")
	attendancehttp.NewAttendanceHandler(svc, logger.Component("http")).RegisterRoutes(v1)

	registerProbes(router, rdb, gateway)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited")
}

func buildSigner(cfg *config.Config) signer.Provider {
	if cfg.Signer.KeyFile == "" {
		if cfg.Ledger.Mode == "memory" {
			// The embedded ledger is for local development; give it a usable
			// throwaway identity.
			p, err := signer.NewEphemeral()
			if err != nil {
				logger.Fatal().Err(err).Msg("Failed to generate ephemeral identity")
			}
			return p
		}
		return signer.Disconnected{}
	}

	p, err := signer.NewFromKeyFile(cfg.Signer.KeyFile)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Signer.KeyFile).Msg("Failed to load signer key")
	}
	return p
}

func buildGateway(cfg *config.Config, deriver *derive.Deriver, signerProvider signer.Provider) ledger.Gateway {
	if cfg.Ledger.Mode == "memory" {
		admin := "solock-admin"
		if identity, err := signerProvider.Identity(); err == nil {
			admin = base58.Encode(identity)
		}
		logger.Info().Msg("Using embedded in-memory ledger")
		return ledger.NewMemory(deriver, admin)
	}

	logger.Info().Str("base_url", cfg.Ledger.BaseURL).Msg("Using HTTP ledger gateway")
	return ledger.NewClient(cfg.Ledger.BaseURL, cfg.Ledger.RequestTimeout, logger.Component("ledger"))
}

func registerProbes(router *gin.Engine, rdb *redisplatform.Client, gateway ledger.Gateway) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
			"service":   "solock-backend",
		})
	})

	router.GET("/live", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := rdb.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unready",
				"error":   "redis unavailable",
				"details": err.Error(),
			})
			return
		}

		if err := gateway.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unready",
				"error":   "ledger unavailable",
				"details": err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "ready",
			"timestamp": time.Now().UTC(),
			"service":   "solock-backend",
		})
	})
}
