package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	apperrors "github.com/promptloop/promptloop/internal/pkg/errors"
	"github.com/promptloop/promptloop/internal/repository/postgres"
	"github.com/promptloop/promptloop/internal/worker"
)

// IterationsHandler handles iteration aggregation endpoints
type IterationsHandler struct {
	repo   *postgres.IterationRepository
	client *asynq.Client
	logger *zap.Logger
}

// NewIterationsHandler creates a new iterations handler
func NewIterationsHandler(repo *postgres.IterationRepository, client *asynq.Client, logger *zap.Logger) *IterationsHandler {
	return &IterationsHandler{
		repo:   repo,
		client: client,
		logger: logger,
	}
}

// Aggregate handles POST /v1/iterations/:iterationId/aggregate. It enqueues
// an aggregation pass; the work itself runs on the worker so the request
// returns immediately.
func (h *IterationsHandler) Aggregate(c *fiber.Ctx) error {
	iterationID, err := uuid.Parse(c.Params("iterationId"))
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid iteration ID")
	}

	exists, err := h.repo.Exists(c.Context(), iterationID)
	if err != nil {
		h.logger.Error("failed to check iteration", zap.Error(err))
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to check iteration")
	}
	if !exists {
		return errorResponse(c, fiber.StatusNotFound, "Iteration not found")
	}

	if err := worker.EnqueueAggregation(h.client, &worker.AggregationPayload{IterationID: iterationID}); err != nil {
		h.logger.Error("failed to enqueue aggregation",
			zap.String("iteration_id", iterationID.String()),
			zap.Error(err),
		)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to enqueue aggregation")
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"iterationId": iterationID,
		"status":      "queued",
	})
}

// GetMetrics handles GET /v1/iterations/:iterationId/metrics
func (h *IterationsHandler) GetMetrics(c *fiber.Ctx) error {
	iterationID, err := uuid.Parse(c.Params("iterationId"))
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid iteration ID")
	}

	iteration, err := h.repo.GetByID(c.Context(), iterationID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return errorResponse(c, fiber.StatusNotFound, "Iteration not found")
		}
		h.logger.Error("failed to get iteration", zap.Error(err))
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to get iteration")
	}

	return c.JSON(fiber.Map{
		"iterationId": iteration.ID,
		"status":      iteration.Status,
		"totalCost":   iteration.TotalCost,
		"totalTokens": iteration.TotalTokens,
		"metrics":     iteration.Metrics,
	})
}

// GetIteration handles GET /v1/iterations/:iterationId
func (h *IterationsHandler) GetIteration(c *fiber.Ctx) error {
	iterationID, err := uuid.Parse(c.Params("iterationId"))
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid iteration ID")
	}

	iteration, err := h.repo.GetByID(c.Context(), iterationID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return errorResponse(c, fiber.StatusNotFound, "Iteration not found")
		}
		h.logger.Error("failed to get iteration", zap.Error(err))
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to get iteration")
	}

	return c.JSON(iteration)
}

// RegisterRoutes registers iteration routes
func (h *IterationsHandler) RegisterRoutes(app *fiber.App) {
	v1 := app.Group("/v1")

	v1.Get("/iterations/:iterationId", h.GetIteration)
	v1.Get("/iterations/:iterationId/metrics", h.GetMetrics)
	v1.Post("/iterations/:iterationId/aggregate", h.Aggregate)
}
