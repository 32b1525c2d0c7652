package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/promptloop/promptloop/internal/domain"
	"github.com/promptloop/promptloop/internal/testutil"
)

func TestRankingService_RankRuns(t *testing.T) {
	svc := NewRankingService(zap.NewNop())
	iteration := testutil.NewTestIteration()
	runA := testutil.NewTestRun(iteration.ID, "model-a")
	runB := testutil.NewTestRun(iteration.ID, "model-b")
	runC := testutil.NewTestRun(iteration.ID, "model-c")
	runs := []domain.ModelRun{runA, runB, runC}

	t.Run("ties count toward comparisons only", func(t *testing.T) {
		matches := []domain.PairwiseMatch{
			{RunIDs: [2]uuid.UUID{runA.ID, runB.ID}, WinnerRunID: testutil.UUIDPtr(runA.ID)},
			{RunIDs: [2]uuid.UUID{runA.ID, runB.ID}, WinnerRunID: testutil.UUIDPtr(runB.ID)},
			{RunIDs: [2]uuid.UUID{runA.ID, runC.ID}},
		}

		entries := svc.RankRuns(runs, matches)

		a := entries[runA.ID.String()]
		assert.Equal(t, 1, a.Wins)
		assert.Equal(t, 1, a.Losses)
		assert.Equal(t, 3, a.Comparisons)
		assert.InDelta(t, 1.0/3.0, a.WinRate, 1e-9)

		b := entries[runB.ID.String()]
		assert.Equal(t, 1, b.Wins)
		assert.Equal(t, 1, b.Losses)
		assert.Equal(t, 2, b.Comparisons)
		assert.InDelta(t, 0.5, b.WinRate, 1e-9)

		c := entries[runC.ID.String()]
		assert.Equal(t, 0, c.Wins)
		assert.Equal(t, 0, c.Losses)
		assert.Equal(t, 1, c.Comparisons)
		assert.Zero(t, c.WinRate)
	})

	t.Run("unmatched runs report the zero entry", func(t *testing.T) {
		entries := svc.RankRuns(runs, nil)

		require.Len(t, entries, 3)
		for _, entry := range entries {
			assert.Equal(t, domain.PairwiseRankingEntry{}, entry)
		}
	})

	t.Run("matches naming an unknown run still count for the known side", func(t *testing.T) {
		stranger := uuid.New()
		matches := []domain.PairwiseMatch{
			{RunIDs: [2]uuid.UUID{runA.ID, stranger}, WinnerRunID: testutil.UUIDPtr(runA.ID)},
		}

		entries := svc.RankRuns(runs, matches)

		a := entries[runA.ID.String()]
		assert.Equal(t, 1, a.Wins)
		assert.Equal(t, 1, a.Comparisons)
		_, ok := entries[stranger.String()]
		assert.False(t, ok)
	})
}

func TestRankingService_ResolveMatches(t *testing.T) {
	svc := NewRankingService(zap.NewNop())
	iteration := testutil.NewTestIteration()

	t.Run("resolves winner to the owning run", func(t *testing.T) {
		runA := testutil.NewTestRun(iteration.ID, "model-a")
		runB := testutil.NewTestRun(iteration.ID, "model-b")
		outputA := testutil.NewTestOutput(runA.ID, nil, "")
		outputA.Judgments = []domain.Judgment{
			testutil.NewPairwiseJudgment(outputA.ID, runB.ID, testutil.UUIDPtr(outputA.ID)),
		}
		runA.Outputs = []domain.Output{outputA}

		matches := svc.ResolveMatches([]domain.ModelRun{runA, runB})

		require.Len(t, matches, 1)
		assert.Equal(t, [2]uuid.UUID{runA.ID, runB.ID}, matches[0].RunIDs)
		require.NotNil(t, matches[0].WinnerRunID)
		assert.Equal(t, runA.ID, *matches[0].WinnerRunID)
	})

	t.Run("winner output owned elsewhere credits the competitor", func(t *testing.T) {
		runA := testutil.NewTestRun(iteration.ID, "model-a")
		runB := testutil.NewTestRun(iteration.ID, "model-b")
		outputA := testutil.NewTestOutput(runA.ID, nil, "")
		outputB := testutil.NewTestOutput(runB.ID, nil, "")
		outputA.Judgments = []domain.Judgment{
			testutil.NewPairwiseJudgment(outputA.ID, runB.ID, testutil.UUIDPtr(outputB.ID)),
		}
		runA.Outputs = []domain.Output{outputA}
		runB.Outputs = []domain.Output{outputB}

		matches := svc.ResolveMatches([]domain.ModelRun{runA, runB})

		require.Len(t, matches, 1)
		require.NotNil(t, matches[0].WinnerRunID)
		assert.Equal(t, runB.ID, *matches[0].WinnerRunID)
	})

	t.Run("judgment without a winner resolves to a tie", func(t *testing.T) {
		runA := testutil.NewTestRun(iteration.ID, "model-a")
		runB := testutil.NewTestRun(iteration.ID, "model-b")
		outputA := testutil.NewTestOutput(runA.ID, nil, "")
		outputA.Judgments = []domain.Judgment{
			testutil.NewPairwiseJudgment(outputA.ID, runB.ID, nil),
		}
		runA.Outputs = []domain.Output{outputA}

		matches := svc.ResolveMatches([]domain.ModelRun{runA, runB})

		require.Len(t, matches, 1)
		assert.Nil(t, matches[0].WinnerRunID)
	})

	t.Run("drops judgments missing competitor metadata", func(t *testing.T) {
		runA := testutil.NewTestRun(iteration.ID, "model-a")
		outputA := testutil.NewTestOutput(runA.ID, nil, "")
		judgment := testutil.NewPairwiseJudgment(outputA.ID, uuid.New(), nil)
		judgment.Metadata = nil
		outputA.Judgments = []domain.Judgment{judgment}
		runA.Outputs = []domain.Output{outputA}

		matches := svc.ResolveMatches([]domain.ModelRun{runA})

		assert.Empty(t, matches)
	})

	t.Run("ignores pointwise judgments", func(t *testing.T) {
		runA := testutil.NewTestRun(iteration.ID, "model-a")
		outputA := testutil.NewTestOutput(runA.ID, nil, "")
		outputA.Judgments = []domain.Judgment{
			testutil.NewPointwiseJudgment(outputA.ID, map[string]float64{"accuracy": 4}),
		}
		runA.Outputs = []domain.Output{outputA}

		matches := svc.ResolveMatches([]domain.ModelRun{runA})

		assert.Empty(t, matches)
	})
}
