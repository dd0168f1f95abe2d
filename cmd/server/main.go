package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/fieldmetrics/api/internal/auth"
	"github.com/fieldmetrics/api/internal/client"
	"github.com/fieldmetrics/api/internal/config"
	"github.com/fieldmetrics/api/internal/handler"
	"github.com/fieldmetrics/api/internal/middleware"
	"github.com/fieldmetrics/api/internal/service"
	"github.com/fieldmetrics/api/internal/signature"
	"github.com/fieldmetrics/api/internal/store"
	"github.com/fieldmetrics/api/internal/worker"
	ws "github.com/fieldmetrics/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// The shared secret guards every hand-off and callback; running
	// without one silently disables signing, so refuse to start.
	signer, err := signature.NewSigner(cfg.Model.SharedSecret)
	if err != nil {
		log.Fatalf("Failed to initialize signer: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Stores
	jobStore := store.NewRedisJobStore(redisClient)
	recordStore := store.NewRedisRecordStore(redisClient)
	resultStore := store.NewRedisResultStore(redisClient)

	// External clients
	modelClient := client.NewModelClient(&cfg.Model)
	renderClient := client.NewRenderClient(&cfg.Render)

	var storageClient client.StorageClient
	if r2, err := client.NewR2Client(&cfg.R2); err != nil {
		log.Printf("Warning: object storage disabled: %v", err)
	} else {
		storageClient = r2
	}

	// Initialize services
	locks := service.NewJobLocks()
	notifier := service.NewQueueNotifier(asynqClient)
	dispatchService := service.NewDispatchService(
		jobStore, recordStore, asynqClient, modelClient, signer, locks, hub,
		cfg.Retry.MaxRetries, cfg.Model.TimeoutDuration(),
	)
	retryService := service.NewRetryService(
		jobStore, dispatchService, locks, hub,
		cfg.Retry.BaseDelay(), cfg.Retry.MaxDelay(),
	)
	ingestService := service.NewIngestService(
		jobStore, recordStore, resultStore, renderClient, notifier, locks, hub,
	)
	recordService := service.NewRecordService(recordStore, dispatchService)
	jobService := service.NewJobService(jobStore, resultStore)
	inboxService := service.NewInboxService(redisClient)

	// Initialize handlers
	recordHandler := handler.NewRecordHandler(recordService, validate)
	jobHandler := handler.NewJobHandler(jobService, retryService)
	callbackHandler := handler.NewCallbackHandler(ingestService, signer, validate, &cfg.Model)
	mediaHandler := handler.NewMediaHandler(storageClient)
	notificationHandler := handler.NewNotificationHandler(inboxService)
	authHandler := handler.NewAuthHandler()

	// Initialize middleware
	var authMiddleware *middleware.AuthMiddleware
	if cfg.OIDC.Issuer != "" || cfg.OIDC.Domain != "" {
		verifier, err := auth.NewJWKSVerifier(&cfg.OIDC)
		if err != nil {
			log.Printf("Warning: JWKS verifier unavailable, falling back to legacy tokens: %v", err)
			authMiddleware = middleware.NewLegacyAuthMiddleware(cfg.JWT.Secret)
		} else {
			authMiddleware = middleware.NewAuthMiddlewareWithFallback(verifier, cfg.JWT.Secret)
		}
	} else {
		authMiddleware = middleware.NewLegacyAuthMiddleware(cfg.JWT.Secret)
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	authenticate := authMiddleware.Authenticate()
	if cfg.Gateway.Enabled {
		authenticate = middleware.GatewayAuthMiddleware()
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    200 * 1024 * 1024, // match video uploads
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Signature,X-Timestamp",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		status := "ok"
		if err := redisClient.Ping(c.Context()).Err(); err != nil {
			status = "degraded"
		}
		return c.JSON(fiber.Map{
			"status": status,
			"services": fiber.Map{
				"model":  modelClient.IsConfigured(),
				"render": renderClient.IsConfigured(),
				"r2":     storageClient != nil,
				"auth":   true,
			},
		})
	})

	// Model server callback (signature-verified, no user auth)
	app.Post("/api/v1/model/callback", callbackHandler.Receive)

	// Auth routes
	authRoutes := app.Group("/auth", authenticate)
	authRoutes.Get("/verify", authHandler.Verify)

	// API routes
	api := app.Group("/api", authenticate)

	// Record routes
	records := api.Group("/records")
	records.Post("/", rateLimiter.UploadLimit(cfg.RateLimit.UploadPerHour), recordHandler.Upload)
	records.Get("/:recordId", rateLimiter.StatusLimit(cfg.RateLimit.StatusPerMin), recordHandler.Get)
	records.Post("/:recordId/analyze", rateLimiter.UploadLimit(cfg.RateLimit.UploadPerHour), recordHandler.Resubmit)

	// Job routes
	jobs := api.Group("/jobs", rateLimiter.StatusLimit(cfg.RateLimit.StatusPerMin))
	jobs.Get("/:jobId", jobHandler.Status)
	jobs.Get("/:jobId/report", jobHandler.Report)

	// Media routes
	media := api.Group("/media")
	media.Post("/", rateLimiter.UploadLimit(cfg.RateLimit.UploadPerHour), mediaHandler.Upload)
	media.Get("/sign", mediaHandler.SignedURL)

	// Notification routes
	notifications := api.Group("/notifications")
	notifications.Get("/", notificationHandler.List)
	notifications.Post("/ack", notificationHandler.Ack)

	// Admin routes
	admin := api.Group("/admin", middleware.RequireAdmin())
	admin.Get("/jobs/failed", jobHandler.ListFailed)
	admin.Post("/jobs/:jobId/retry", rateLimiter.RetryLimit(cfg.RateLimit.RetryPerHour), jobHandler.Retry)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, redisClient, dispatchService)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(cfg *config.Config, redisClient *redis.Client, dispatchService *service.DispatchService) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"dispatch": 6,
				"notify":   4,
			},
		},
	)

	// Create workers
	dispatchWorker := worker.NewDispatchWorker(dispatchService)
	notifyWorker := worker.NewNotifyWorker(redisClient)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeDispatch, dispatchWorker.ProcessTask)
	mux.HandleFunc(service.TaskTypeNotify, notifyWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
