// Package main is the entrypoint for the WorkHuntr API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kiranshivaraju/workhuntr/internal/ai"
	"github.com/kiranshivaraju/workhuntr/internal/api"
	"github.com/kiranshivaraju/workhuntr/internal/api/handler"
	mw "github.com/kiranshivaraju/workhuntr/internal/api/middleware"
	"github.com/kiranshivaraju/workhuntr/internal/api/response"
	"github.com/kiranshivaraju/workhuntr/internal/cache"
	"github.com/kiranshivaraju/workhuntr/internal/classify"
	"github.com/kiranshivaraju/workhuntr/internal/config"
	"github.com/kiranshivaraju/workhuntr/internal/enrich"
	"github.com/kiranshivaraju/workhuntr/internal/match"
	"github.com/kiranshivaraju/workhuntr/internal/metrics"
	"github.com/kiranshivaraju/workhuntr/internal/pipeline"
	"github.com/kiranshivaraju/workhuntr/internal/quota"
	"github.com/kiranshivaraju/workhuntr/internal/scheduler"
	"github.com/kiranshivaraju/workhuntr/internal/search"
	"github.com/kiranshivaraju/workhuntr/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not read .env", "error", err)
	}

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, failing fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"ai_provider", cfg.AI.Provider,
		"search_provider", cfg.Search.Provider,
		"env", cfg.Server.Env,
	)
	if !cfg.Search.HasCredentials() {
		slog.Warn("search provider credentials missing; discovery runs will fail",
			"search_provider", cfg.Search.Provider)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create AI provider
	aiProvider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", aiProvider.Name())

	// 6. Create search client
	searchClient, err := search.NewClient(cfg.Search)
	if err != nil {
		return fmt.Errorf("create search client: %w", err)
	}

	// 7. Assemble the pipeline
	pgStore := store.NewPostgresStore(pool)
	m := metrics.New()
	gate := quota.NewGate(pgStore, redisCache)

	coord := pipeline.NewCoordinator(pipeline.Deps{
		Preferences:  pgStore,
		Resumes:      pgStore,
		Gate:         gate,
		Search:       search.NewCachedClient(searchClient, redisCache, cfg.Search.CacheTTL),
		Limiter:      pipeline.NewSearchLimiter(cfg.Search.MinInterval),
		Deduplicator: classify.Deduplicator{ExcludeKeywords: cfg.Pipeline.ExcludeKeywords},
		Enricher:     enrich.NewExtractor(aiProvider, cfg.AI.InferenceTimeout, m),
		Scorer:       match.NewScorer(aiProvider, cfg.AI.InferenceTimeout, match.Heuristic{}, cfg.Pipeline.ResumeMaxBytes, m),
		Jobs:         pgStore,
		Metrics:      m,
	}, pipeline.OptionsFromConfig(cfg.Pipeline, cfg.Search, true))

	runner := pipeline.NewRunner(coord, gate, pgStore, redisCache, m, cfg.Pipeline.RunTimeout)

	// 8. Start the periodic sweep
	var sweeper *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sweeper = scheduler.New(pgStore, runner, cfg.Scheduler.Interval, cfg.Scheduler.Concurrency,
			scheduler.WithBacklog(coord))
		if err := sweeper.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		slog.Info("scheduler started", "interval", cfg.Scheduler.Interval)
	}

	// 9. Build router with dependencies
	deps := api.Dependencies{
		Auth:           mw.NewAuth(pgStore),
		RateLimit:      mw.NewRateLimit(redisCache, cfg.Server.RequestsPerMinute, m),
		Metrics:        m,
		AllowedOrigins: cfg.Server.CORSOrigins,

		HealthHandler:    healthHandler(pgStore, redisCache),
		DiscoveryHandler: handler.NewDiscoveryHandler(runner),
		ScoringHandler:   handler.NewScoringHandler(runner),
		GetRunHandler:    handler.NewGetRunHandler(pgStore),
		RunStatusHandler: handler.NewRunStatusHandler(runner),
		ListJobsHandler:  handler.NewListJobsHandler(pgStore),
		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 10. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // synchronous scoring can take a while
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if sweeper != nil {
		sweeper.Stop()
	}

	// Background discovery runs get the rest of the shutdown window, then are
	// cancelled. They must end before the pool closes.
	drained := make(chan struct{})
	go func() {
		runner.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		slog.Warn("cancelling discovery runs still in flight at shutdown")
		runner.Cancel()
		<-drained
	}
	runner.Cancel()

	slog.Info("server stopped gracefully")
	return nil
}

// pinger is satisfied by the store and the cache.
type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and cache connectivity.
func healthHandler(db, c pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
