// cmd/service/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github-trending/internal/api"
	"github-trending/internal/config"
	"github-trending/internal/database"
	"github-trending/internal/enricher"
	"github-trending/internal/github"
	"github-trending/internal/jobs"
	"github-trending/internal/retry"
	"github-trending/internal/syncer"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("Application startup error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Initialize structured logger
	logLevel := new(slog.LevelVar)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// 2. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel, logLevel)
	logger.Info("Configuration loaded successfully")

	// 3. Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Initialize database connection and run migrations
	dbpool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbpool.Close()
	logger.Info("Database connection established")

	if err := runMigrations(cfg.DBURL); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	logger.Info("Database migrations applied successfully")

	// 5. Initialize application components
	ghClient, err := github.NewClient(github.Options{
		Token:      cfg.GithubToken,
		BaseURL:    cfg.GithubAPIURL,
		GraphQLURL: cfg.GithubGraphQLURL,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create GitHub client: %w", err)
	}

	store := database.NewStore(dbpool)
	policy := retry.Policy{
		RateLimitBase: cfg.RateLimitBackoff,
		TransientBase: cfg.TransientBackoff,
		Max:           cfg.MaxBackoff,
		MaxAttempts:   cfg.MaxRetryAttempts,
		Logger:        logger,
	}
	appSyncer := syncer.NewSyncer(store, ghClient, logger, syncer.Options{
		Query:               cfg.SearchQuery,
		PageSize:            cfg.SyncPageSize,
		QuickTarget:         cfg.QuickSyncTarget,
		ComprehensiveTarget: cfg.ComprehensiveSyncTarget,
		PacingDelay:         cfg.PacingDelay,
		Retry:               policy,
	})
	appEnricher := enricher.NewEnricher(store, ghClient, logger, enricher.Options{
		BatchSize:     cfg.EnrichBatchSize,
		PacingDelay:   cfg.PacingDelay,
		FallbackPages: cfg.FallbackCommitPages,
		Retry:         policy,
	})
	manager := jobs.NewManager(ctx, store, appSyncer, appEnricher, logger)
	if err := manager.Recover(ctx); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(store, manager, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 6. Serve the API and the scheduler until shutdown
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if cfg.SyncInterval > 0 {
		g.Go(func() error {
			manager.Schedule(gctx, cfg.SyncInterval)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received. Draining requests and jobs.")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		return server.Shutdown(shutdownCtx)
	})

	logger.Info("Application started. Waiting for shutdown signal...")
	err = g.Wait()
	cancel() // stop background jobs if the server failed on its own
	manager.Wait()
	logger.Info("Shutdown complete")
	return err
}

func runMigrations(dbURL string) error {
	m, err := migrate.New("file://migrations", dbURL)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func setLogLevel(level string, v *slog.LevelVar) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}
