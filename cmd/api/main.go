package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/ethnolens/ethnolens/internal/analysis"
	"github.com/ethnolens/ethnolens/internal/api"
	"github.com/ethnolens/ethnolens/internal/config"
	"github.com/ethnolens/ethnolens/internal/database"
	"github.com/ethnolens/ethnolens/internal/genai"
	"github.com/ethnolens/ethnolens/internal/jobs/sweep"
	"github.com/ethnolens/ethnolens/internal/middleware"
	"github.com/ethnolens/ethnolens/internal/pending"
	"github.com/ethnolens/ethnolens/internal/quota"
	iredis "github.com/ethnolens/ethnolens/internal/redis"
	"github.com/ethnolens/ethnolens/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("validating config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.DB.DSN(), cfg.DB.MigrationsPath); err != nil {
		slog.Error("migrating database", "error", err)
		os.Exit(1)
	}

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// Quota ledger
	quotaRepo := quota.NewRepository(pool)
	quotaSvc := quota.NewService(quotaRepo, quota.Policy{
		MaxOperations: cfg.Quota.MaxOperations,
		Period:        cfg.Quota.Period,
	})
	pendingRepo := pending.NewRepository(pool)

	// Analysis
	gemini := genai.NewClient(cfg.Gemini)
	analysisSvc := analysis.NewService(quotaSvc, pendingRepo, gemini)
	analysisHandler := analysis.NewHandler(analysisSvc)

	// Orphaned-pending sweep (opt-in via QUOTA_PENDING_TTL)
	if cfg.Quota.PendingTTL > 0 {
		job := sweep.New(pendingRepo, cfg.Quota.PendingTTL, cfg.Quota.SweepInterval)
		go job.Run(ctx)
	}

	// Router
	rateLimiter := middleware.NewRateLimiter(redisClient, cfg.RateLimit.MaxRequests, cfg.RateLimit.WindowSec)
	router := api.NewRouter(pool, api.RouterConfig{
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		AnalyzeRateLimiter: rateLimiter.Middleware,
	}, api.HandlerSet{
		Analyze:         analysisHandler.Analyze,
		AnalyzeImage:    analysisHandler.AnalyzeImage,
		Confirm:         analysisHandler.Confirm,
		GetUsage:        analysisHandler.GetUsage,
		LogPremiumClick: analysisHandler.LogPremiumClick,
	})

	// Start server
	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
