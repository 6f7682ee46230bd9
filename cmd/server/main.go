// Package main runs the live-shopping platform HTTP server with WebSocket
// fan-out and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bazaar-live/backend/config"
	"github.com/bazaar-live/backend/internal/analytics"
	"github.com/bazaar-live/backend/internal/auth"
	"github.com/bazaar-live/backend/internal/catalog"
	"github.com/bazaar-live/backend/internal/livesession"
	"github.com/bazaar-live/backend/internal/media"
	"github.com/bazaar-live/backend/internal/middleware"
	"github.com/bazaar-live/backend/internal/realtime"
	"github.com/bazaar-live/backend/internal/showcase"
	"github.com/bazaar-live/backend/internal/worker"
	"github.com/bazaar-live/backend/pkg/database"
	"github.com/bazaar-live/backend/pkg/queue"
	"github.com/bazaar-live/backend/pkg/redis"
	"github.com/bazaar-live/backend/pkg/response"
	"github.com/bazaar-live/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ProductMediaBucket:   cfg.AWS.ProductMediaBucket,
			ExportsBucket:        cfg.AWS.ExportsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Session coordinator: persistence + media transport + broadcast
	sessionRepo := livesession.NewRepository(pool)
	transport := media.NewZegoTransport(cfg.Zego, rdb.Client, logger)
	coord := livesession.NewCoordinator(sessionRepo, transport, hub, logger)
	sessionHandler := livesession.NewHandler(coord, sessionRepo, logger)

	// Catalog (session product resolution goes through the coordinator)
	catalogRepo := catalog.NewRepository(pool)
	catalogHandler := catalog.NewHandler(catalogRepo, coord, s3Client, logger)

	// Analytics: peak viewers from live connections, highlight counters from
	// the coordinator, remaining counters from the post-session worker.
	statsRepo := analytics.NewRepository(pool)
	statsHandler := analytics.NewHandler(statsRepo, logger)
	hub.SetPresenceHandler(func(sessionID uuid.UUID, count int) {
		if err := statsRepo.UpdatePeakViewers(context.Background(), sessionID, count); err != nil {
			logger.Warn("update peak viewers failed", zap.Error(err), zap.String("session_id", sessionID.String()))
		}
	})
	coord.SetHighlightHook(func(sessionID, productID uuid.UUID) {
		if err := statsRepo.IncrementHighlights(context.Background(), sessionID); err != nil {
			logger.Warn("increment highlights failed", zap.Error(err), zap.String("session_id", sessionID.String()))
		}
	})

	// Showcase rotation (host-controlled auto-highlight)
	rotatorRegistry := showcase.NewRegistry()
	showcaseHandler := showcase.NewHandler(rotatorRegistry, coord, cfg.Showcase.RotationIntervalSec, logger)

	// Post-session jobs: stats rollup and chat transcript export
	jobQueue := queue.NewQueue(rdb.Client, logger)
	coord.SetEndHook(func(sessionID uuid.UUID) {
		rotatorRegistry.Stop(sessionID)
		bg := context.Background()
		if err := jobQueue.Enqueue(bg, queue.JobTypeStatsRollup, queue.SessionJobPayload{SessionID: sessionID}); err != nil {
			logger.Error("enqueue stats rollup failed", zap.Error(err), zap.String("session_id", sessionID.String()))
		}
		if err := jobQueue.Enqueue(bg, queue.JobTypeChatExport, queue.SessionJobPayload{SessionID: sessionID}); err != nil {
			logger.Error("enqueue chat export failed", zap.Error(err), zap.String("session_id", sessionID.String()))
		}
	})
	processor := worker.NewProcessor(sessionRepo, statsRepo, s3Client, jobQueue, logger)

	jwtValidate := func(token string) (userID, role string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", "", err
		}
		return claims.UserID.String(), claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Public storefront listing
	router.GET("/sessions", sessionHandler.List)

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Users (admin only)
		api.GET("/users", middleware.RequireRole("admin"), authHandler.List)

		// Products (vendors manage their own catalog)
		api.GET("/products", middleware.RequireRole("vendor", "admin"), catalogHandler.ListMine)
		api.POST("/products", middleware.RequireRole("vendor", "admin"), catalogHandler.Create)
		api.GET("/products/:id", catalogHandler.Get)
		api.PATCH("/products/:id", middleware.RequireRole("vendor", "admin"), catalogHandler.Update)
		api.DELETE("/products/:id", middleware.RequireRole("vendor", "admin"), catalogHandler.Delete)
		api.POST("/products/:id/image", middleware.RequireRole("vendor", "admin"), catalogHandler.UploadImage)
		api.POST("/products/:id/image/presign", middleware.RequireRole("vendor", "admin"), catalogHandler.PresignImageUpload)
		api.POST("/products/:id/image/confirm", middleware.RequireRole("vendor", "admin"), catalogHandler.ConfirmImage)

		// Live sessions
		api.POST("/sessions", middleware.RequireRole("vendor", "admin"), sessionHandler.Create)
		api.GET("/sessions/:id", sessionHandler.Get)
		api.POST("/sessions/:id/start", sessionHandler.Start)
		api.POST("/sessions/:id/end", sessionHandler.End)
		api.POST("/sessions/:id/join", sessionHandler.Join)
		api.POST("/sessions/:id/leave", sessionHandler.Leave)
		api.GET("/sessions/:id/viewers", sessionHandler.ViewerCount)
		api.GET("/sessions/:id/products", catalogHandler.ListSessionProducts)
		api.GET("/sessions/:id/on-air", media.OnAir(transport))

		// Chat
		api.POST("/sessions/:id/chat", sessionHandler.PostChat)
		api.GET("/sessions/:id/chat", sessionHandler.ListChat)

		// Highlights
		api.POST("/sessions/:id/highlight", sessionHandler.Highlight)
		api.DELETE("/sessions/:id/highlight", sessionHandler.ClearHighlight)

		// Showcase rotation (host)
		api.GET("/sessions/:id/showcase", showcaseHandler.Status)
		api.POST("/sessions/:id/showcase/start", showcaseHandler.Start)
		api.POST("/sessions/:id/showcase/stop", showcaseHandler.Stop)

		// Stats
		api.GET("/sessions/:id/stats", statsHandler.Get)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// In-process worker; run cmd/worker separately to scale it out.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go processor.Run(workerCtx)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	rotatorRegistry.StopAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
