package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"

	"github.com/linguacast/api/internal/admission"
	"github.com/linguacast/api/internal/client"
	"github.com/linguacast/api/internal/config"
	"github.com/linguacast/api/internal/handler"
	"github.com/linguacast/api/internal/middleware"
	"github.com/linguacast/api/internal/model"
	"github.com/linguacast/api/internal/queue"
	"github.com/linguacast/api/internal/store"
	"github.com/linguacast/api/internal/tts"
	"github.com/linguacast/api/internal/worker"
	"github.com/linguacast/api/pkg/response"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", "err", err)
	}
	if lvl, err := log.ParseLevel(cfg.Server.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	// Shared Redis connection pool. An unreachable broker at startup is a
	// process-level failure; the orchestrator restarts us.
	redisClient, err := queue.NewConnection(&cfg.Redis)
	if err != nil {
		log.Fatal("broker unreachable", "err", err)
	}
	redisOpt := queue.RedisOpt(&cfg.Redis)

	// Broker client and inspector
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()
	inspector := asynq.NewInspector(redisOpt)

	// Queue and admission, constructed once and passed by handle
	jobQueue := queue.New(redisClient, asynqClient, inspector, &cfg.Queue)
	admissionCtrl := admission.NewController(
		admission.NewRedisStore(redisClient),
		cfg.Admission.CooldownDuration,
		cfg.Admission.QuotaLimit,
		cfg.Admission.QuotaWindow,
	)

	// Content store
	contentStore := store.NewRedisStore(redisClient)

	// Object storage (falls back to in-memory storage when unconfigured)
	var storage client.StorageClient
	if cfg.Storage.AccessKeyID != "" && cfg.Storage.SecretAccessKey != "" {
		blob, err := client.NewBlobStorage(&cfg.Storage)
		if err != nil {
			log.Fatal("storage client init failed", "err", err)
		}
		storage = blob
	} else {
		log.Info("object storage not configured, using in-memory storage")
		storage = client.NewMemoryStorage()
	}

	// Synthesis provider, selected once by mode
	resolver := tts.NewVoiceResolver(cfg.TTS.DefaultVoice)
	provider, err := tts.NewProvider(cfg.TTS.Mode,
		tts.NewEdgeProvider(&cfg.TTS, resolver),
		tts.NewCloudProvider(&cfg.TTS, resolver),
	)
	if err != nil {
		log.Fatal("tts provider init failed", "err", err)
	}
	log.Info("synthesis provider selected", "provider", provider.Name())

	// External clients
	llmClient := client.NewLLMClient(&cfg.LLM)
	imageClient := client.NewImageClient(&cfg.Image)
	translitClient := client.NewTranslitClient(&cfg.Translit)

	// Handlers
	validate := validator.New()
	generationHandler := handler.NewGenerationHandler(jobQueue, validate)
	jobsHandler := handler.NewJobsHandler(jobQueue, admissionCtrl)
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"broker": redisClient.Ping(c.Context()).Err() == nil,
				"tts":    provider.Name(),
				"llm":    llmClient.IsConfigured(),
			},
		})
	})

	// API routes
	api := app.Group("/api", authMiddleware.Authenticate())

	generate := api.Group("/generate", middleware.Admit(admissionCtrl))
	generate.Post("/audio", generationHandler.Audio)
	generate.Post("/image", generationHandler.Image)
	generate.Post("/course", generationHandler.Course)

	api.Get("/admission/status", jobsHandler.AdmissionStatus)
	api.Get("/jobs/:jobId", jobsHandler.Status)
	api.Post("/jobs/:jobId/retry", jobsHandler.Retry)
	api.Delete("/jobs/:jobId", jobsHandler.Remove)
	api.Get("/queues/:queue/counts", jobsHandler.Counts)

	// Worker server
	workerServer := queue.NewServer(redisOpt, jobQueue, &cfg.Queue)
	workerServer.Handle(model.JobTypeDialogueAudio, worker.NewAudioWorker(
		jobQueue, contentStore, provider, storage, translitClient, cfg.TTS.SpeedTiers, cfg.Watchdog,
	).ProcessTask)
	workerServer.Handle(model.JobTypeEpisodeImage, worker.NewImageWorker(
		jobQueue, contentStore, imageClient, storage,
	).ProcessTask)
	workerServer.Handle(model.JobTypeCourseOutline, worker.NewCourseWorker(
		jobQueue, contentStore, llmClient,
	).ProcessTask)

	go func() {
		if err := workerServer.Run(); err != nil {
			log.Fatal("worker server error", "err", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info("shutting down")
		workerServer.Shutdown()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error("server shutdown error", "err", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Info("server starting", "addr", addr, "env", cfg.Server.Env)
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", "err", err)
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
