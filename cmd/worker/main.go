package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/promptloop/promptloop/internal/config"
	"github.com/promptloop/promptloop/internal/pkg/database"
	"github.com/promptloop/promptloop/internal/pkg/lock"
	"github.com/promptloop/promptloop/internal/pkg/logger"
	pgrepo "github.com/promptloop/promptloop/internal/repository/postgres"
	"github.com/promptloop/promptloop/internal/service"
	"github.com/promptloop/promptloop/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize the logger. The global is what the database package logs
	// through; every component shares the same config-driven instance so
	// level and format apply process-wide.
	if err := logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zlog := logger.Log

	zlog.Info("starting worker service")

	// Initialize dependencies
	aggregationService, cleanup, err := initWorkerDependencies(cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to initialize dependencies", zap.Error(err))
	}
	defer cleanup()

	// Create worker server
	workerServer := worker.NewServer(zlog, cfg, aggregationService)

	// Start worker in a goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- workerServer.Start()
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		zlog.Info("shutting down worker...")
		workerServer.Stop()
	case err := <-errCh:
		if err != nil {
			zlog.Error("worker server error", zap.Error(err))
		}
	}

	zlog.Info("worker stopped")
}

// initWorkerDependencies initializes dependencies for the worker
func initWorkerDependencies(cfg *config.Config, zlog *zap.Logger) (*service.AggregationService, func(), error) {
	ctx := context.Background()

	pgDB, err := database.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	redisDB, err := database.NewRedis(ctx, cfg.Redis)
	if err != nil {
		pgDB.Close()
		return nil, nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}

	// Repositories
	iterationRepo := pgrepo.NewIterationRepository(pgDB)

	// Distributed lock manager backed by Redis
	locks := lock.NewManager(lock.NewRedisStore(redisDB), lock.Config{
		TTL:          cfg.Aggregation.LockTTL,
		PollInterval: cfg.Aggregation.LockPollInterval,
	}, zlog)

	// Services
	events := service.NewEventBus()
	composite := service.NewCompositeService(zlog)
	confidence := service.NewConfidenceService(composite, zlog)
	ranking := service.NewRankingService(zlog)
	coverage := service.NewCoverageService(composite, zlog)

	aggregationService := service.NewAggregationService(
		iterationRepo,
		locks,
		events,
		composite,
		confidence,
		ranking,
		coverage,
		cfg.Aggregation.BootstrapSamples,
		zlog,
	)

	cleanup := func() {
		_ = redisDB.Client.Close()
		pgDB.Close()
	}

	return aggregationService, cleanup, nil
}
