package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codebuildervaibhav/recording-processor/internal/cleanup"
	"github.com/codebuildervaibhav/recording-processor/internal/config"
	"github.com/codebuildervaibhav/recording-processor/internal/handlers"
	"github.com/codebuildervaibhav/recording-processor/internal/llm"
	"github.com/codebuildervaibhav/recording-processor/internal/metrics"
	"github.com/codebuildervaibhav/recording-processor/internal/notifier"
	"github.com/codebuildervaibhav/recording-processor/internal/pipeline"
	"github.com/codebuildervaibhav/recording-processor/internal/session"
	"github.com/codebuildervaibhav/recording-processor/internal/storage"
	"github.com/codebuildervaibhav/recording-processor/internal/transcription"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ensure directories exist
	if err := cleanup.EnsureTempDirExists(cfg.Storage.TempDir); err != nil {
		log.Fatalf("Failed to create temp directory: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Database), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	// Custom logger setup
	logBuffer := handlers.NewLogBuffer()
	log.SetOutput(io.MultiWriter(os.Stdout, logBuffer))

	log.Println("Initializing components...")
	ctx := context.Background()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	registry := session.NewRegistry()
	localStorage := storage.NewLocalStorage(cfg.Storage.TempDir)

	uploader, err := newUploader(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize %s uploader: %v", cfg.Storage.Backend, err)
	}

	chat, err := llm.New(llm.Settings{
		Provider:         cfg.LLM.Provider,
		OpenAIAPIKey:     cfg.OpenAI.APIKey,
		OpenAIBaseURL:    cfg.OpenAI.BaseURL,
		Model:            cfg.OpenAI.ChatModel,
		YandexOAuthToken: cfg.LLM.YandexOAuthToken,
		YandexFolderID:   cfg.LLM.YandexFolderID,
	})
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	gate := transcription.NewGate(
		transcription.NewWhisperTranscriber(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.TranscriptionModel),
		transcription.NewLLMSummarizer(chat),
	)

	// Database
	db, err := storage.NewMetadataDB(cfg.Storage.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()
	registry.SetHistory(db)

	proc := pipeline.New(pipeline.Config{
		Registry:  registry,
		Artifacts: localStorage,
		Uploader:  uploader,
		Gate:      gate,
		Notifier:  notifier.NewClient(cfg.Notifier.BaseURL, cfg.NotifyTimeout()),
		Recorder:  db,
		Metrics:   m,
	})

	// Cleanup scheduler
	cleanupScheduler := cleanup.NewScheduler(cfg.Storage.TempDir, cfg.Cleanup.Schedule, cfg.CleanupMaxAge(), cleanup.Trackers{registry, db}, m)
	if err := cleanupScheduler.Start(); err != nil {
		log.Fatalf("Failed to start cleanup scheduler: %v", err)
	}
	defer cleanupScheduler.Stop()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowOrigins,
		AllowMethods: "GET,POST",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	app.Use(handlers.MetricsMiddleware(m))

	// Initialize handlers
	streamHandler := handlers.NewStreamHandler(registry, proc, m, cfg.Server.ReadLimitBytes)
	sessionsHandler := handlers.NewSessionsHandler(registry, db)
	qaHandler := handlers.NewQAHandler(chat)

	// Routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":          "healthy",
			"version":         "1.0.0",
			"active_sessions": registry.Len(),
		})
	})

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/stream", websocket.New(streamHandler.Handle))

	app.Get("/sessions", sessionsHandler.List)
	app.Get("/sessions/active", sessionsHandler.Active)
	app.Get("/sessions/:filename", sessionsHandler.Get)
	app.Post("/api/ai-qa", qaHandler.Handle)
	app.Get("/logs", logBuffer.Handle)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s (upload backend: %s)", addr, cfg.Storage.Backend)
	log.Println("Endpoints:")
	log.Println("   GET  /ws/stream          - WebSocket recording stream")
	log.Println("   GET  /sessions           - List recordings")
	log.Println("   GET  /sessions/active    - Sessions held in memory")
	log.Println("   GET  /sessions/:filename - Recording details")
	log.Println("   POST /api/ai-qa          - Ask a question about a transcript")
	log.Println("   GET  /logs               - View server logs")
	log.Println("   GET  /metrics            - Prometheus metrics")
	log.Println("   GET  /health             - Health check")

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("Shutting down gracefully...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}

	log.Println("Waiting for running pipelines...")
	proc.Wait()
}

// newUploader builds the configured durable storage backend
func newUploader(ctx context.Context, cfg *config.Config) (pipeline.Uploader, error) {
	switch cfg.Storage.Backend {
	case config.BackendGDrive:
		dc, err := storage.NewDriveClient(ctx,
			cfg.GoogleDrive.CredentialsFile,
			cfg.GoogleDrive.TokenFile,
			cfg.GoogleDrive.FolderName,
		)
		if err != nil {
			return nil, err
		}
		log.Println("Google Drive upload backend enabled")
		return dc, nil
	default:
		return storage.NewS3Uploader(ctx, storage.S3Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Endpoint:  cfg.S3.Endpoint,
		})
	}
}
