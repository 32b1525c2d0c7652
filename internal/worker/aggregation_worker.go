package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	apperrors "github.com/promptloop/promptloop/internal/pkg/errors"
	"github.com/promptloop/promptloop/internal/service"
)

const (
	// TypeAggregation is the task type for aggregating one iteration
	TypeAggregation = "aggregation:run"
	// TypeBatchAggregation is the task type for aggregating several iterations
	TypeBatchAggregation = "aggregation:run-batch"
)

// AggregationPayload is the payload for aggregation tasks
type AggregationPayload struct {
	IterationID uuid.UUID `json:"iteration_id"`
}

// NewAggregationTask creates a new aggregation task
func NewAggregationTask(payload *AggregationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal aggregation payload: %w", err)
	}
	return asynq.NewTask(TypeAggregation, data, asynq.MaxRetry(3), asynq.Timeout(5*time.Minute)), nil
}

// BatchAggregationPayload is the payload for batch aggregation tasks
type BatchAggregationPayload struct {
	IterationIDs []uuid.UUID `json:"iteration_ids"`
}

// NewBatchAggregationTask creates a batch aggregation task
func NewBatchAggregationTask(payload *BatchAggregationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch aggregation payload: %w", err)
	}
	return asynq.NewTask(TypeBatchAggregation, data, asynq.MaxRetry(3), asynq.Timeout(30*time.Minute)), nil
}

// AggregationWorker handles aggregation tasks
type AggregationWorker struct {
	logger  *zap.Logger
	service *service.AggregationService
}

// NewAggregationWorker creates a new aggregation worker
func NewAggregationWorker(logger *zap.Logger, svc *service.AggregationService) *AggregationWorker {
	return &AggregationWorker{
		logger:  logger,
		service: svc,
	}
}

// ProcessTask processes an aggregation task
func (w *AggregationWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload AggregationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal aggregation payload: %w", err)
	}

	w.logger.Info("processing aggregation",
		zap.String("iteration_id", payload.IterationID.String()),
	)

	_, err := w.service.AggregateIteration(ctx, payload.IterationID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			// Retrying cannot make a deleted iteration appear.
			w.logger.Warn("iteration not found, dropping task",
				zap.String("iteration_id", payload.IterationID.String()),
			)
			return nil
		}
		return fmt.Errorf("failed to aggregate iteration %s: %w", payload.IterationID, err)
	}

	return nil
}

// ProcessBatchTask processes a batch aggregation task. Iterations are
// aggregated one at a time; a failure on one does not stop the rest, and
// the task fails at the end so failed iterations are retried.
func (w *AggregationWorker) ProcessBatchTask(ctx context.Context, t *asynq.Task) error {
	var payload BatchAggregationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal batch aggregation payload: %w", err)
	}

	w.logger.Info("processing batch aggregation",
		zap.Int("iterations", len(payload.IterationIDs)),
	)

	var failed int
	for _, id := range payload.IterationIDs {
		if _, err := w.service.AggregateIteration(ctx, id); err != nil {
			if apperrors.IsNotFound(err) {
				continue
			}
			failed++
			w.logger.Error("failed to aggregate iteration in batch",
				zap.String("iteration_id", id.String()),
				zap.Error(err),
			)
		}
	}

	if failed > 0 {
		return fmt.Errorf("batch aggregation finished with %d failures", failed)
	}

	return nil
}
