package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/berrys-ai/agents/internal/adapter/agentapi"
	agentshttp "github.com/berrys-ai/agents/internal/adapter/http"
	"github.com/berrys-ai/agents/internal/adapter/litellm"
	agentsnats "github.com/berrys-ai/agents/internal/adapter/nats"
	"github.com/berrys-ai/agents/internal/adapter/otel"
	"github.com/berrys-ai/agents/internal/adapter/postgres"
	"github.com/berrys-ai/agents/internal/adapter/ristretto"
	"github.com/berrys-ai/agents/internal/adapter/ws"
	"github.com/berrys-ai/agents/internal/config"
	"github.com/berrys-ai/agents/internal/logger"
	"github.com/berrys-ai/agents/internal/middleware"
	"github.com/berrys-ai/agents/internal/resilience"
	"github.com/berrys-ai/agents/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		return fmt.Errorf("flags: %w", err)
	}

	cfg, configPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"path", configPath,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"max_concurrent", cfg.Runtime.MaxConcurrent,
	)

	ctx := context.Background()

	// --- Telemetry ---
	shutdownTelemetry, err := otel.Init(ctx, cfg.Logging.Service, cfg.Telemetry.Endpoint, cfg.Telemetry.Enabled)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// NATS
	queue, err := agentsnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()
	slog.Info("nats connected", "url", cfg.NATS.URL)

	// --- Upstream clients ---
	llmClient := litellm.NewClient(cfg.LiteLLM.URL, cfg.LiteLLM.MasterKey, cfg.LiteLLM.Timeout)
	llmClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	lookupCache, err := ristretto.New(64 << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	directory := agentapi.NewClient(cfg.Registry.AgentURL, cfg.Registry.TaskURL, lookupCache, cfg.Registry.CacheTTL)
	directory.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	// --- Services ---
	hub := ws.NewHub()
	store := postgres.NewStore(pool)
	emitter := service.NewEventEmitter(queue, hub, metrics)
	tasks := service.NewTaskManager(cfg.Runtime.MaxConcurrent)
	states := service.NewStateManager(store, emitter, tasks)
	progress := service.NewProgressTracker(store, emitter)
	runner := service.NewRunner(store, directory, llmClient, states, progress, emitter, cfg.Runtime)
	executions := service.NewExecutionService(store, directory, states, progress, runner, tasks, queue, cfg.Runtime)

	cancelSubs, err := executions.StartSubscribers(ctx)
	if err != nil {
		return fmt.Errorf("subscribers: %w", err)
	}
	defer func() {
		for _, cancel := range cancelSubs {
			cancel()
		}
	}()

	// --- HTTP ---
	handlers := &agentshttp.Handlers{
		Executions: executions,
		LiteLLM:    llmClient,
		Queue:      queue,
		DB:         pool,
	}

	r := chi.NewRouter()
	r.Use(agentshttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(agentshttp.Logger)
	r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/health", handlers.Health)
	r.Get("/ws", hub.HandleWS)
	agentshttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
	if err := queue.Drain(); err != nil {
		slog.Warn("nats drain", "error", err)
	}
	return nil
}
