package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/promptloop/promptloop/internal/domain"
	apperrors "github.com/promptloop/promptloop/internal/pkg/errors"
	"github.com/promptloop/promptloop/internal/pkg/lock"
	"github.com/promptloop/promptloop/internal/testutil"
)

type stubIterationRepo struct {
	iteration *domain.Iteration
	saveErr   error

	graphCalls  int
	savedDoc    map[string]any
	savedCost   float64
	savedTokens int64
	saveCalls   int
}

func (r *stubIterationRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.iteration != nil && r.iteration.ID == id, nil
}

func (r *stubIterationRepo) GetWithGraph(ctx context.Context, id uuid.UUID) (*domain.Iteration, error) {
	r.graphCalls++
	if r.iteration == nil || r.iteration.ID != id {
		return nil, apperrors.NotFound("iteration")
	}
	return r.iteration, nil
}

func (r *stubIterationRepo) SaveMetrics(ctx context.Context, id uuid.UUID, doc map[string]any, totalCost float64, totalTokens int64) error {
	r.saveCalls++
	if r.saveErr != nil {
		return r.saveErr
	}
	r.savedDoc = doc
	r.savedCost = totalCost
	r.savedTokens = totalTokens
	return nil
}

func newAggregationFixture(repo *stubIterationRepo, store lock.Store) (*AggregationService, *EventBus) {
	logger := zap.NewNop()
	locks := lock.NewManager(store, lock.Config{
		TTL:          time.Second,
		PollInterval: 10 * time.Millisecond,
	}, logger)
	events := NewEventBus()
	composite := NewCompositeService(logger)

	return NewAggregationService(
		repo,
		locks,
		events,
		composite,
		NewConfidenceService(composite, logger),
		NewRankingService(logger),
		NewCoverageService(composite, logger),
		200,
		logger,
	), events
}

// judgedIteration builds an iteration with two judged runs and one pairwise
// match between them.
func judgedIteration() *domain.Iteration {
	iteration := testutil.NewTestIteration()
	iteration.Rubric = testutil.NewTestRubric(map[string]float64{
		"accuracy": 0.6,
		"clarity":  0.4,
	})

	runA := testutil.NewTestRun(iteration.ID, "model-a")
	runA.Cost = 1.25
	runA.InputTokens = 1000
	runA.OutputTokens = 500
	runB := testutil.NewTestRun(iteration.ID, "model-b")
	runB.Cost = 0.75
	runB.InputTokens = 800
	runB.OutputTokens = 200

	outputA := testutil.NewTestOutput(runA.ID, []string{"billing"}, "easy")
	outputB := testutil.NewTestOutput(runB.ID, []string{"billing"}, "easy")
	outputA.Judgments = []domain.Judgment{
		testutil.NewPointwiseJudgment(outputA.ID, map[string]float64{"accuracy": 4, "clarity": 2}),
		testutil.NewPairwiseJudgment(outputA.ID, runB.ID, testutil.UUIDPtr(outputA.ID)),
	}
	outputB.Judgments = []domain.Judgment{
		testutil.NewPointwiseJudgment(outputB.ID, map[string]float64{"accuracy": 8, "clarity": 6}),
	}
	runA.Outputs = []domain.Output{outputA}
	runB.Outputs = []domain.Output{outputB}

	iteration.Runs = []domain.ModelRun{runA, runB}
	return iteration
}

func TestAggregationService_AggregateIteration(t *testing.T) {
	t.Run("persists merged metrics and rolled-up totals", func(t *testing.T) {
		iteration := judgedIteration()
		iteration.Metrics = map[string]any{
			"safetySummary": map[string]any{"flaggedOutputs": float64(2)},
			"budgetStatus":  "within_budget",
		}
		repo := &stubIterationRepo{iteration: iteration}
		svc, _ := newAggregationFixture(repo, lock.NewMemoryStore())

		payload, err := svc.AggregateIteration(context.Background(), iteration.ID)

		require.NoError(t, err)
		require.NotNil(t, payload)
		assert.InDelta(t, 2.0, payload.TotalCost, 1e-9)
		assert.Equal(t, int64(2500), payload.TotalTokens)
		runA := iteration.Runs[0]
		assert.InDelta(t, 0.6*4+0.4*2, payload.CompositeScores[runA.ID.String()], 1e-9)

		require.Equal(t, 1, repo.saveCalls)
		assert.InDelta(t, 2.0, repo.savedCost, 1e-9)
		assert.Equal(t, int64(2500), repo.savedTokens)

		// Keys owned by other subsystems survive the merge.
		assert.Equal(t, iteration.Metrics["safetySummary"], repo.savedDoc["safetySummary"])
		assert.Equal(t, "within_budget", repo.savedDoc["budgetStatus"])
		assert.Contains(t, repo.savedDoc, domain.MetricsKeyCompositeScores)
		assert.Contains(t, repo.savedDoc, domain.MetricsKeyPairwiseRanking)
		assert.Contains(t, repo.savedDoc, domain.MetricsKeyCoverageMatrix)
	})

	t.Run("emits progress then judging-complete then exactly one metrics event", func(t *testing.T) {
		iteration := judgedIteration()
		repo := &stubIterationRepo{iteration: iteration}
		svc, events := newAggregationFixture(repo, lock.NewMemoryStore())
		sub := events.Subscribe(context.Background(), iteration.ID)
		defer events.Unsubscribe(sub.ID)

		_, err := svc.AggregateIteration(context.Background(), iteration.ID)
		require.NoError(t, err)

		var types []EventType
	drain:
		for {
			select {
			case event := <-sub.Channel:
				types = append(types, event.Type)
			default:
				break drain
			}
		}

		require.Equal(t, []EventType{EventTypeRunProgress, EventTypeJudgingComplete, EventTypeMetrics}, types)
	})

	t.Run("counts runs without outputs as failed in progress", func(t *testing.T) {
		iteration := judgedIteration()
		iteration.Runs = append(iteration.Runs, testutil.NewTestRun(iteration.ID, "model-c"))
		repo := &stubIterationRepo{iteration: iteration}
		svc, events := newAggregationFixture(repo, lock.NewMemoryStore())
		sub := events.Subscribe(context.Background(), iteration.ID)
		defer events.Unsubscribe(sub.ID)

		_, err := svc.AggregateIteration(context.Background(), iteration.ID)
		require.NoError(t, err)

		event := <-sub.Channel
		progress, ok := event.Data.(RunProgressPayload)
		require.True(t, ok)
		assert.Equal(t, RunProgressPayload{CompletedRuns: 2, TotalRuns: 3, FailedRuns: 1}, progress)
	})

	t.Run("unknown iteration fails before touching the lock", func(t *testing.T) {
		repo := &stubIterationRepo{}
		store := lock.NewMemoryStore()
		svc, _ := newAggregationFixture(repo, store)
		missing := uuid.New()

		_, err := svc.AggregateIteration(context.Background(), missing)

		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
		assert.Zero(t, repo.graphCalls)

		// The lock key was never created, so a fresh acquire succeeds
		// immediately.
		ok, acquireErr := store.Acquire(context.Background(), lock.KeyPrefix+"iteration:"+missing.String(), "fresh-token", time.Second)
		require.NoError(t, acquireErr)
		assert.True(t, ok)
	})

	t.Run("persistence failure publishes failure instead of metrics and propagates", func(t *testing.T) {
		iteration := judgedIteration()
		saveErr := errors.New("connection reset")
		repo := &stubIterationRepo{iteration: iteration, saveErr: saveErr}
		svc, events := newAggregationFixture(repo, lock.NewMemoryStore())
		sub := events.Subscribe(context.Background(), iteration.ID)
		defer events.Unsubscribe(sub.ID)

		_, err := svc.AggregateIteration(context.Background(), iteration.ID)

		require.Error(t, err)
		assert.ErrorIs(t, err, saveErr)

		var types []EventType
	drain:
		for {
			select {
			case event := <-sub.Channel:
				types = append(types, event.Type)
			default:
				break drain
			}
		}
		assert.Equal(t, []EventType{EventTypeRunProgress, EventTypeJudgingComplete, EventTypeFailure}, types)
	})

	t.Run("missing rubric fails with a failure event", func(t *testing.T) {
		iteration := judgedIteration()
		iteration.Rubric = nil
		repo := &stubIterationRepo{iteration: iteration}
		svc, events := newAggregationFixture(repo, lock.NewMemoryStore())
		sub := events.Subscribe(context.Background(), iteration.ID)
		defer events.Unsubscribe(sub.ID)

		_, err := svc.AggregateIteration(context.Background(), iteration.ID)

		require.Error(t, err)
		event := <-sub.Channel
		assert.Equal(t, EventTypeFailure, event.Type)
		assert.Zero(t, repo.saveCalls)
	})

	t.Run("rubric without criteria fails with a failure event", func(t *testing.T) {
		iteration := judgedIteration()
		iteration.Rubric = &domain.Rubric{ID: uuid.New()}
		repo := &stubIterationRepo{iteration: iteration}
		svc, events := newAggregationFixture(repo, lock.NewMemoryStore())
		sub := events.Subscribe(context.Background(), iteration.ID)
		defer events.Unsubscribe(sub.ID)

		_, err := svc.AggregateIteration(context.Background(), iteration.ID)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid rubric")
		event := <-sub.Channel
		assert.Equal(t, EventTypeFailure, event.Type)
		assert.Zero(t, repo.saveCalls)
	})

	t.Run("times out when the iteration lock is held elsewhere", func(t *testing.T) {
		iteration := judgedIteration()
		repo := &stubIterationRepo{iteration: iteration}
		store := lock.NewMemoryStore()
		key := lock.KeyPrefix + "iteration:" + iteration.ID.String()
		held, err := store.Acquire(context.Background(), key, "other-worker", 10*time.Second)
		require.NoError(t, err)
		require.True(t, held)

		logger := zap.NewNop()
		locks := lock.NewManager(store, lock.Config{
			TTL:          50 * time.Millisecond,
			PollInterval: 10 * time.Millisecond,
		}, logger)
		composite := NewCompositeService(logger)
		svc := NewAggregationService(
			repo, locks, NewEventBus(), composite,
			NewConfidenceService(composite, logger),
			NewRankingService(logger),
			NewCoverageService(composite, logger),
			200, logger,
		)

		_, err = svc.AggregateIteration(context.Background(), iteration.ID)

		require.Error(t, err)
		assert.True(t, apperrors.IsLockTimeout(err))
		assert.Zero(t, repo.graphCalls)
	})

	t.Run("aggregation is deterministic across passes", func(t *testing.T) {
		iteration := judgedIteration()
		repo := &stubIterationRepo{iteration: iteration}
		svc, _ := newAggregationFixture(repo, lock.NewMemoryStore())

		first, err := svc.AggregateIteration(context.Background(), iteration.ID)
		require.NoError(t, err)
		second, err := svc.AggregateIteration(context.Background(), iteration.ID)
		require.NoError(t, err)

		assert.Equal(t, first, second)
	})
}
