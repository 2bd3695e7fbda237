package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"attendify-backend/internal/config"
	"attendify-backend/internal/database"
	"attendify-backend/internal/handlers"
	"attendify-backend/internal/logging"
	"attendify-backend/internal/middleware"
	"attendify-backend/internal/ratelimit"
	"attendify-backend/internal/repository"
	"attendify-backend/internal/router"
	"attendify-backend/internal/services"
	"attendify-backend/internal/websocket"
	"attendify-backend/internal/worker"
)

func main() {
	root := &cobra.Command{
		Use:           "attendify",
		Short:         "Attendify attendance verification backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API, WebSocket hub and verification workers",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return migrate()
			},
		},
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.Env)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func migrate() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	if err := database.RunMigrations(pool); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	log.Info().Msg("database migrations applied")
	return nil
}

func serve(ctx context.Context) error {
	// ──── Step 1: Load Environment Variables ────
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log.Info().Str("env", cfg.Env).Msg("starting Attendify backend")
	loc, err := cfg.AttendanceLocation()
	if err != nil {
		return err
	}

	// ──── Step 2: PostgreSQL ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	log.Info().Msg("postgres connected")

	// ──── Step 3: Redis ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClients.Close()
	log.Info().Msg("redis connected")

	// ──── Step 4: Migrations ────
	if err := database.RunMigrations(pool); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	// ──── Repositories ────
	sessionRepo := repository.NewSessionRepo(pool)
	submissionRepo := repository.NewSubmissionRepo(pool)
	attendanceRepo := repository.NewAttendanceRepo(pool)
	courseRepo := repository.NewCourseRepo(pool)

	// ──── Step 5: Semantic Verifier ────
	var verifier services.SemanticVerifier
	switch cfg.LLMProvider {
	case "openai":
		verifier = services.NewOpenAIVerifier(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	default:
		gv, err := services.NewGeminiVerifier(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return fmt.Errorf("gemini: %w", err)
		}
		defer gv.Close()
		verifier = gv
	}
	log.Info().Str("provider", cfg.LLMProvider).Msg("semantic verifier ready")

	// ──── Rate Limits ────
	var globalLimiter, submitLimiter ratelimit.Limiter
	if cfg.RateLimitBackend == "redis" {
		globalLimiter = ratelimit.NewRedisWindow(redisClients.Queue, "ratelimit:", cfg.CallsPerMinute, time.Minute)
		submitLimiter = ratelimit.NewRedisWindow(redisClients.Queue, "ratelimit:", cfg.SubmitRequestsPerMin, time.Minute)
	} else {
		globalLimiter = ratelimit.NewSlidingWindow(cfg.CallsPerMinute, time.Minute)
		submitLimiter = ratelimit.NewSlidingWindow(cfg.SubmitRequestsPerMin, time.Minute)
	}

	// ──── Services ────
	settings := services.SettingsFromConfig(cfg)
	notifier := websocket.NewPublisher(redisClients.PubSub)
	finalizer := services.NewFinalizer(sessionRepo, courseRepo, attendanceRepo, loc)
	guard := services.NewCostGuard(globalLimiter, sessionRepo)
	verification := services.NewVerificationService(
		guard, verifier, submissionRepo, finalizer, notifier, settings.ConfidenceThreshold, cfg.VerifyTimeout,
	)

	// ──── Step 6: Verification Worker Pool ────
	var queue worker.Queue
	if cfg.VerifyQueue == "redis" {
		queue = worker.NewRedisQueue(redisClients.Queue)
	} else {
		queue = worker.NewMemoryQueue()
	}
	workerPool := worker.NewPool(queue, verification, cfg.VerifyWorkers)
	workerPool.Start()
	log.Info().Int("workers", cfg.VerifyWorkers).Str("queue", cfg.VerifyQueue).Msg("verification workers started")

	pipeline := services.NewPipeline(services.NewHardFilter(nil))
	sessionService := services.NewSessionService(sessionRepo, submissionRepo, courseRepo, finalizer, notifier, settings)
	submissionService := services.NewSubmissionService(
		sessionRepo, submissionRepo, courseRepo, pipeline, workerPool, finalizer, notifier, settings,
	)
	summaryService := services.NewAttendanceSummaryService(courseRepo, attendanceRepo)

	// Jobs held in memory did not survive the last shutdown; a redis list
	// keeps its jobs, so only submissions stuck past the stale window return.
	cutoff := time.Now().UTC()
	if cfg.VerifyQueue == "redis" {
		cutoff = cutoff.Add(-settings.StalePendingAfter)
	}
	if _, err := submissionService.RequeuePending(ctx, cutoff); err != nil {
		log.Error().Err(err).Msg("failed to recover pending submissions")
	}

	// ──── Step 7: WebSocket Hub ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth)

	// ──── Step 8: HTTP Server ────
	r := router.New(router.Deps{
		JWTAuth:       jwtAuth,
		SubmitLimiter: middleware.NewRateLimiter(submitLimiter, "submit:"),
		Sessions:      handlers.NewAttendanceSessionHandler(sessionService, submissionService),
		Summary:       handlers.NewAttendanceSummaryHandler(summaryService),
		WebSocket:     wsHub.HandleWebSocket,
		FrontendURL:   cfg.FrontendURL,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
		workerPool.Stop()
		wsHub.Close()
	}()

	log.Info().Str("port", cfg.Port).Msg("Attendify backend ready")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	<-stopped
	return nil
}
