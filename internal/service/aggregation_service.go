package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/promptloop/promptloop/internal/domain"
	apperrors "github.com/promptloop/promptloop/internal/pkg/errors"
	"github.com/promptloop/promptloop/internal/pkg/lock"
	"github.com/promptloop/promptloop/internal/pkg/metrics"
	"github.com/promptloop/promptloop/internal/validator"
)

// IterationRepository defines the persistence contract the aggregation
// engine needs from the iteration store.
type IterationRepository interface {
	// Exists reports whether the iteration is present at all. Used before
	// taking the lock so a missing iteration fails without touching the
	// lock store.
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	// GetWithGraph loads the iteration with its runs, outputs, judgments,
	// case facets, and rubric.
	GetWithGraph(ctx context.Context, id uuid.UUID) (*domain.Iteration, error)
	// SaveMetrics persists the merged metrics document and the rolled-up
	// cost/token totals in a single write.
	SaveMetrics(ctx context.Context, id uuid.UUID, doc map[string]any, totalCost float64, totalTokens int64) error
}

// AggregationService is the engine's entry point: it turns raw per-output
// judgments into iteration-level metrics under a per-iteration distributed
// lock and reports progress on the event bus.
//
// Per invocation it moves through lock acquisition, data load, analysis,
// persistence, event emission, and lock release. Only one pass per
// iteration id is ever inside the load-to-persist section process-wide; a
// second worker racing on the same iteration blocks on the lock and then
// re-reads fresh state. There is no mid-pass cancellation: once the guarded
// function starts it runs to completion so partial metrics are never
// persisted.
type AggregationService struct {
	repo       IterationRepository
	locks      *lock.Manager
	events     *EventBus
	composite  *CompositeService
	confidence *ConfidenceService
	ranking    *RankingService
	coverage   *CoverageService
	samples    int
	logger     *zap.Logger
}

// NewAggregationService creates a new aggregation service. bootstrapSamples
// is the resample count handed to the confidence estimator.
func NewAggregationService(
	repo IterationRepository,
	locks *lock.Manager,
	events *EventBus,
	composite *CompositeService,
	confidence *ConfidenceService,
	ranking *RankingService,
	coverage *CoverageService,
	bootstrapSamples int,
	logger *zap.Logger,
) *AggregationService {
	return &AggregationService{
		repo:       repo,
		locks:      locks,
		events:     events,
		composite:  composite,
		confidence: confidence,
		ranking:    ranking,
		coverage:   coverage,
		samples:    bootstrapSamples,
		logger:     logger,
	}
}

// AggregateIteration runs one aggregation pass for the iteration. On
// success exactly one metrics event is published and the merged document is
// persisted; on failure inside the critical section a failure event is
// published in place of metrics and the error is propagated so the caller
// (the job worker) can retry. The lock is released on both paths.
func (s *AggregationService) AggregateIteration(ctx context.Context, iterationID uuid.UUID) (*domain.IterationMetrics, error) {
	exists, err := s.repo.Exists(ctx, iterationID)
	if err != nil {
		return nil, fmt.Errorf("failed to check iteration: %w", err)
	}
	if !exists {
		return nil, apperrors.NotFound("iteration")
	}

	start := time.Now()
	var payload *domain.IterationMetrics
	err = s.locks.WithLock(ctx, "iteration:"+iterationID.String(), func(ctx context.Context) error {
		var lockErr error
		payload, lockErr = s.aggregateLocked(ctx, iterationID)
		return lockErr
	})
	if err != nil {
		metrics.RecordAggregation("failure", time.Since(start))
		return nil, err
	}

	metrics.RecordAggregation("success", time.Since(start))
	return payload, nil
}

// aggregateLocked is the critical section: it re-reads fresh state under
// the lock, runs the four analyses, merges and persists, and emits events
// in the causal order the facts were learned.
func (s *AggregationService) aggregateLocked(ctx context.Context, iterationID uuid.UUID) (*domain.IterationMetrics, error) {
	iteration, err := s.repo.GetWithGraph(ctx, iterationID)
	if err != nil {
		s.events.PublishFailure(iterationID, err.Error())
		return nil, err
	}
	rubric := iteration.Rubric
	if rubric == nil {
		err := fmt.Errorf("iteration %s has no rubric", iterationID)
		s.events.PublishFailure(iterationID, err.Error())
		return nil, err
	}
	if err := validator.Validate(rubric); err != nil {
		err = fmt.Errorf("iteration %s has an invalid rubric: %w", iterationID, err)
		s.events.PublishFailure(iterationID, err.Error())
		return nil, err
	}

	completed, failed, totalOutputs := runProgress(iteration.Runs)
	s.events.PublishRunProgress(iterationID, completed, len(iteration.Runs), failed)
	s.events.PublishJudgingComplete(iterationID, totalOutputs)

	compositeScores, iterationScore := s.composite.ScoreRuns(rubric, iteration.Runs)
	intervals := s.confidence.EstimateRuns(rubric, iteration.Runs, ConfidenceConfig{
		Samples: s.samples,
		Seed:    iterationID.String(),
	})
	matches := s.ranking.ResolveMatches(iteration.Runs)
	ranking := s.ranking.RankRuns(iteration.Runs, matches)
	matrix, facets := s.coverage.Analyze(rubric, iteration.Runs)

	var totalCost float64
	var totalTokens int64
	for i := range iteration.Runs {
		run := &iteration.Runs[i]
		totalCost += run.Cost
		totalTokens += run.InputTokens + run.OutputTokens
	}

	payload := &domain.IterationMetrics{
		CompositeScores:     compositeScores,
		ConfidenceIntervals: intervals,
		PairwiseRanking:     ranking,
		FacetAnalysis:       facets,
		CoverageMatrix:      matrix,
		CompositeScore:      iterationScore,
		TotalCost:           totalCost,
		TotalTokens:         totalTokens,
	}

	computed, err := payload.Document()
	if err != nil {
		s.events.PublishFailure(iterationID, err.Error())
		return nil, fmt.Errorf("failed to render metrics document: %w", err)
	}

	// Merge into the stored document so keys owned by other subsystems
	// (safetySummary, budgetStatus) survive the write.
	merged := domain.MergeMetrics(iteration.Metrics, computed)

	if err := s.repo.SaveMetrics(ctx, iterationID, merged, totalCost, totalTokens); err != nil {
		s.events.PublishFailure(iterationID, err.Error())
		return nil, fmt.Errorf("failed to persist metrics: %w", err)
	}

	s.events.PublishMetrics(iterationID, payload)

	s.logger.Info("aggregated iteration",
		zap.String("iteration_id", iterationID.String()),
		zap.Int("runs", len(iteration.Runs)),
		zap.Int("outputs", totalOutputs),
		zap.Float64("composite_score", iterationScore),
	)

	return payload, nil
}

// runProgress counts completed and failed runs. A run that produced no
// outputs is reported as failed; execution upstream records nothing else.
func runProgress(runs []domain.ModelRun) (completed, failed, totalOutputs int) {
	for i := range runs {
		if len(runs[i].Outputs) == 0 {
			failed++
			continue
		}
		completed++
		totalOutputs += len(runs[i].Outputs)
	}
	return completed, failed, totalOutputs
}
