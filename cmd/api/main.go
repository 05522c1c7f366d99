package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/telemed-faq/backend/internal/analytics"
	"github.com/telemed-faq/backend/internal/api/handlers"
	"github.com/telemed-faq/backend/internal/cache/redis"
	"github.com/telemed-faq/backend/internal/chat"
	"github.com/telemed-faq/backend/internal/evaluation"
	"github.com/telemed-faq/backend/internal/gaps"
	"github.com/telemed-faq/backend/internal/ingestion"
	"github.com/telemed-faq/backend/internal/knowledge"
	"github.com/telemed-faq/backend/internal/llm"
	"github.com/telemed-faq/backend/internal/metrics"
	"github.com/telemed-faq/backend/internal/middleware/ratelimit"
	"github.com/telemed-faq/backend/internal/middleware/security"
	"github.com/telemed-faq/backend/internal/middleware/validation"
	"github.com/telemed-faq/backend/internal/retrieval"
	"github.com/telemed-faq/backend/internal/storage"
	"github.com/telemed-faq/backend/internal/storage/memory"
	"github.com/telemed-faq/backend/internal/storage/sqlite"
	"github.com/telemed-faq/backend/internal/tuning"
	"github.com/telemed-faq/backend/internal/worker"
	"github.com/telemed-faq/backend/pkg/config"
	appLogger "github.com/telemed-faq/backend/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting telemedicine FAQ API server")

	metrics.Init()

	store, err := openStore(cfg)
	if err != nil {
		appLogger.Fatal("Failed to open store", zap.Error(err))
	}
	defer store.Close()

	settings, err := tuning.NewStore(tuning.FromConfig(cfg.Knowledge))
	if err != nil {
		appLogger.Fatal("Invalid knowledge settings", zap.Error(err))
	}

	pool, err := worker.NewPool(cfg.Knowledge.BackgroundWorkers, cfg.Knowledge.BackgroundTimeout)
	if err != nil {
		appLogger.Fatal("Failed to create worker pool", zap.Error(err))
	}

	retrievalSvc := retrieval.NewService(store, settings)

	readiness := map[string]handlers.Pinger{"store": store}
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.CacheTTL)
		if err != nil {
			appLogger.Warn("Redis unavailable, search cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			retrievalSvc.WithCache(redisClient)
			readiness["redis"] = redisClient
		}
	}

	llmClient := llm.NewClient(cfg.LLM)
	if cfg.LLM.APIKey == "" {
		appLogger.Warn("No LLM API key configured, chat replies will use the fallback message")
	}

	tracker := gaps.NewTracker(store, settings)
	evaluationSvc := evaluation.NewService(store, retrievalSvc, tracker, settings)
	knowledgeSvc := knowledge.NewService(store, ingestion.NewProcessor(llmClient), retrievalSvc, evaluationSvc, pool).
		WithFetcher(ingestion.NewFetcher(ingestion.DefaultFetchTimeout))
	engine := chat.NewEngine(store, retrievalSvc, llmClient, tracker, pool, cfg.Knowledge.SearchLimit)

	scheduler := evaluation.NewScheduler(evaluationSvc)
	if cfg.Knowledge.SchedulerEnabled {
		if err := scheduler.Start(cfg.Knowledge.EvaluationInterval); err != nil {
			appLogger.Fatal("Failed to start evaluation scheduler", zap.Error(err))
		}
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	allowOrigins := "*"
	if len(cfg.Security.AllowedOrigins) > 0 {
		allowOrigins = strings.Join(cfg.Security.AllowedOrigins, ", ")
	}

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, X-Session-ID, X-User-ID",
		AllowMethods: "GET, POST, PUT, PATCH, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Security.AllowedOrigins,
		IsDevelopment:  cfg.Security.IsDevelopment,
	}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.MaxRequestsPerMinute,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()

	handlers.RegisterRoutes(app, handlers.Handlers{
		Chat:      handlers.NewChatHandler(engine),
		WebSocket: handlers.NewWebSocketHandler(engine, cfg.Security.MaxMessageLen),
		Knowledge: handlers.NewKnowledgeHandler(knowledgeSvc, retrievalSvc, evaluationSvc),
		Gaps:      handlers.NewGapsHandler(tracker, evaluationSvc, pool),
		Admin:     handlers.NewAdminHandler(settings, analytics.NewService(store)),
		Health:    handlers.NewHealthHandler(readiness),
	}, limiter.Middleware(), validation.Config{
		MaxMessageLength: cfg.Security.MaxMessageLen,
		Logger:           appLogger.GetLogger(),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")

	scheduler.Stop()
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	if err := pool.Release(shutdownTimeout); err != nil {
		appLogger.Warn("Background tasks still running at shutdown", zap.Error(err))
	}

	appLogger.Info("Server stopped")
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case "memory":
		appLogger.Warn("Using in-memory store, data is lost on restart")
		return memory.New(), nil
	default:
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}

		client, err := sqlite.NewClient(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		if err := client.InitSchema(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		return client, nil
	}
}
