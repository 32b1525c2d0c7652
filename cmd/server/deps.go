package main

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/promptloop/promptloop/internal/config"
	"github.com/promptloop/promptloop/internal/handler"
	"github.com/promptloop/promptloop/internal/pkg/database"
	pgrepo "github.com/promptloop/promptloop/internal/repository/postgres"
	"github.com/promptloop/promptloop/internal/service"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	Logger *zap.Logger

	// Database connections
	Postgres *database.PostgresDB
	Redis    *database.RedisDB

	// Repositories
	IterationRepo *pgrepo.IterationRepository

	// Services
	EventBus *service.EventBus

	// Handlers
	HealthHandler     *handler.HealthHandler
	IterationsHandler *handler.IterationsHandler
	EventsHandler     *handler.EventsHandler

	// Asynq client
	AsynqClient *asynq.Client
}

// initDependencies initializes all dependencies
func initDependencies(cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	ctx := context.Background()

	pgDB, err := database.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	deps.Postgres = pgDB

	redisDB, err := database.NewRedis(ctx, cfg.Redis)
	if err != nil {
		pgDB.Close()
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}
	deps.Redis = redisDB

	deps.AsynqClient = asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	deps.IterationRepo = pgrepo.NewIterationRepository(pgDB)
	deps.EventBus = service.NewEventBus()

	deps.HealthHandler = handler.NewHealthHandler(pgDB.Pool, redisDB.Client, appVersion)
	deps.IterationsHandler = handler.NewIterationsHandler(deps.IterationRepo, deps.AsynqClient, logger)
	deps.EventsHandler = handler.NewEventsHandler(deps.EventBus, logger)

	return deps, nil
}

// Close releases all held connections
func (d *Dependencies) Close() {
	if d.AsynqClient != nil {
		_ = d.AsynqClient.Close()
	}
	if d.Redis != nil {
		_ = d.Redis.Client.Close()
	}
	if d.Postgres != nil {
		d.Postgres.Close()
	}
}
