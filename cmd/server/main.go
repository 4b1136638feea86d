package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/makeasinger/edusong/internal/client"
	"github.com/makeasinger/edusong/internal/config"
	"github.com/makeasinger/edusong/internal/handler"
	"github.com/makeasinger/edusong/internal/logger"
	"github.com/makeasinger/edusong/internal/middleware"
	"github.com/makeasinger/edusong/internal/model"
	"github.com/makeasinger/edusong/internal/repository/memory"
	"github.com/makeasinger/edusong/internal/service"
	"github.com/makeasinger/edusong/internal/telemetry"
	ws "github.com/makeasinger/edusong/internal/websocket"
	"github.com/makeasinger/edusong/internal/wizard"
	"github.com/makeasinger/edusong/pkg/response"
)

// @title          EduSong API
// @version        1.0
// @description    Backend API for EduSong: a learning wizard that turns a topic into a song.
// @host           localhost:8000
// @BasePath       /
// @schemes        http https
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger := logger.New(cfg.Server, cfg.Log)
	defer func() { _ = zapLogger.Sync() }()

	steps, err := wizard.ParseSteps(cfg.Wizard.Steps)
	if err != nil {
		zapLogger.Fatal("invalid wizard configuration", zap.Error(err))
	}

	telemetry.Register()

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		zapLogger.Warn("redis not available, rate limiting disabled until it is", zap.Error(err))
	}

	// Initialize WebSocket hub
	hub := ws.NewHub(zapLogger)
	go hub.Run()

	// Initialize external clients
	openaiClient := client.NewOpenAIClient(&cfg.OpenAI)
	sunoClient := client.NewSunoClient(&cfg.Suno, zapLogger)
	if !openaiClient.IsConfigured() {
		zapLogger.Info("OpenAI not configured, using development lyrics")
	}
	if !sunoClient.IsConfigured() {
		zapLogger.Warn("Suno not configured, song generation will fail")
	}

	// Initialize services
	lyricsService := service.NewLyricsService(openaiClient, zapLogger)
	poller := service.NewPoller(sunoClient, cfg.Polling, zapLogger)
	songService := service.NewSongService(sunoClient, lyricsService, poller, cfg.Suno, zapLogger)

	sessions := memory.NewSessionRepository(cfg.Wizard.SessionTTL, 0)
	newSession := func(id string) *wizard.Machine {
		return wizard.New(id, wizard.Deps{
			Lyrics:   lyricsService,
			Songs:    songService,
			Notifier: hub,
			Logger:   zapLogger,
			Steps:    steps,
		})
	}

	// Initialize handlers
	sessionHandler := handler.NewSessionHandler(sessions, newSession, hub, zapLogger)
	catalogHandler := handler.NewCatalogHandler(model.DefaultCatalog())
	callbackHandler := handler.NewCallbackHandler(zapLogger)

	rateLimiter := middleware.NewRateLimiter(redisClient, zapLogger)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    1 * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if !cfg.Server.IsProduction() {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
	}
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"openai": openaiClient.IsConfigured(),
				"suno":   sunoClient.IsConfigured(),
				"redis":  redisClient.Ping(c.UserContext()).Err() == nil,
			},
			"sessions": sessions.Count(),
		})
	})

	// Prometheus metrics
	app.Get("/metrics", adaptor.HTTPHandler(telemetry.Handler()))

	// Music service notifications
	app.Post("/callback", callbackHandler.Receive)

	// API routes
	api := app.Group("/api")
	api.Get("/catalog", catalogHandler.Get)

	// generation starts on the final advance and on retry
	generation := rateLimiter.GenerationLimit(cfg.RateLimit.GenerationsPerHour)
	finalAnswer := rateLimiter.GenerationLimitWhen(cfg.RateLimit.GenerationsPerHour, sessionHandler.StartsGeneration)
	sessionRoutes := api.Group("/sessions")
	sessionRoutes.Post("/", sessionHandler.Create)
	sessionRoutes.Get("/:sessionId", sessionHandler.Get)
	sessionRoutes.Post("/:sessionId/advance", finalAnswer, sessionHandler.Advance)
	sessionRoutes.Post("/:sessionId/back", sessionHandler.Back)
	sessionRoutes.Post("/:sessionId/reset", sessionHandler.Reset)
	sessionRoutes.Post("/:sessionId/retry", generation, sessionHandler.Retry)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/sessions/:sessionId", sessionHandler.RequireSession, websocket.New(sessionHandler.Stream))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		zapLogger.Info("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			zapLogger.Error("server shutdown error", zap.Error(err))
		}
		// cancels every running generation
		sessions.Flush()
		hub.Stop()
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	zapLogger.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Server.Env))
	if err := app.Listen(addr); err != nil {
		zapLogger.Fatal("server error", zap.Error(err))
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return response.Error(c, code, response.CodeServiceError, message, nil)
}
