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

func TestCompositeService_ScoreRuns(t *testing.T) {
	svc := NewCompositeService(zap.NewNop())
	rubric := testutil.NewTestRubric(map[string]float64{
		"accuracy": 0.6,
		"clarity":  0.4,
	})
	iteration := testutil.NewTestIteration()

	t.Run("weights criterion means by rubric weight", func(t *testing.T) {
		run := testutil.NewTestRun(iteration.ID, "model-a")
		output := testutil.NewTestOutput(run.ID, nil, "")
		output.Judgments = []domain.Judgment{
			testutil.NewPointwiseJudgment(output.ID, map[string]float64{
				"accuracy": 4,
				"clarity":  2,
			}),
		}
		run.Outputs = []domain.Output{output}

		scores, mean := svc.ScoreRuns(rubric, []domain.ModelRun{run})

		require.Len(t, scores, 1)
		assert.InDelta(t, 3.2, scores[run.ID.String()], 1e-9)
		assert.InDelta(t, 3.2, mean, 1e-9)
	})

	t.Run("averages criterion scores across outputs and judges", func(t *testing.T) {
		run := testutil.NewTestRun(iteration.ID, "model-a")
		first := testutil.NewTestOutput(run.ID, nil, "")
		first.Judgments = []domain.Judgment{
			testutil.NewPointwiseJudgment(first.ID, map[string]float64{"accuracy": 4}),
			testutil.NewPointwiseJudgment(first.ID, map[string]float64{"accuracy": 6}),
		}
		second := testutil.NewTestOutput(run.ID, nil, "")
		second.Judgments = []domain.Judgment{
			testutil.NewPointwiseJudgment(second.ID, map[string]float64{
				"accuracy": 8,
				"clarity":  5,
			}),
		}
		run.Outputs = []domain.Output{first, second}

		scores, _ := svc.ScoreRuns(rubric, []domain.ModelRun{run})

		// accuracy mean (4+6+8)/3 = 6, clarity mean 5
		assert.InDelta(t, 0.6*6+0.4*5, scores[run.ID.String()], 1e-9)
	})

	t.Run("criterion with no observations contributes nothing", func(t *testing.T) {
		run := testutil.NewTestRun(iteration.ID, "model-a")
		output := testutil.NewTestOutput(run.ID, nil, "")
		output.Judgments = []domain.Judgment{
			testutil.NewPointwiseJudgment(output.ID, map[string]float64{"accuracy": 5}),
		}
		run.Outputs = []domain.Output{output}

		scores, _ := svc.ScoreRuns(rubric, []domain.ModelRun{run})

		assert.InDelta(t, 0.6*5, scores[run.ID.String()], 1e-9)
	})

	t.Run("run with no judged outputs scores zero but stays listed", func(t *testing.T) {
		judged := testutil.NewTestRun(iteration.ID, "model-a")
		output := testutil.NewTestOutput(judged.ID, nil, "")
		output.Judgments = []domain.Judgment{
			testutil.NewPointwiseJudgment(output.ID, map[string]float64{"accuracy": 4}),
		}
		judged.Outputs = []domain.Output{output}
		empty := testutil.NewTestRun(iteration.ID, "model-b")

		scores, mean := svc.ScoreRuns(rubric, []domain.ModelRun{judged, empty})

		require.Len(t, scores, 2)
		assert.Zero(t, scores[empty.ID.String()])
		assert.InDelta(t, (0.6*4+0)/2, mean, 1e-9)
	})

	t.Run("pairwise judgments are ignored for scoring", func(t *testing.T) {
		run := testutil.NewTestRun(iteration.ID, "model-a")
		output := testutil.NewTestOutput(run.ID, nil, "")
		output.Judgments = []domain.Judgment{
			testutil.NewPointwiseJudgment(output.ID, map[string]float64{"accuracy": 4}),
			testutil.NewPairwiseJudgment(output.ID, uuid.New(), nil),
		}
		run.Outputs = []domain.Output{output}

		scores, _ := svc.ScoreRuns(rubric, []domain.ModelRun{run})

		assert.InDelta(t, 0.6*4, scores[run.ID.String()], 1e-9)
	})

	t.Run("no runs yields empty scores and zero mean", func(t *testing.T) {
		scores, mean := svc.ScoreRuns(rubric, nil)

		assert.Empty(t, scores)
		assert.Zero(t, mean)
	})
}

func TestCompositeService_OutputScore(t *testing.T) {
	svc := NewCompositeService(zap.NewNop())
	rubric := testutil.NewTestRubric(map[string]float64{
		"accuracy": 0.6,
		"clarity":  0.4,
	})

	t.Run("scores a single output", func(t *testing.T) {
		output := testutil.NewTestOutput(uuid.New(), nil, "")
		output.Judgments = []domain.Judgment{
			testutil.NewPointwiseJudgment(output.ID, map[string]float64{
				"accuracy": 4,
				"clarity":  2,
			}),
		}

		score, ok := svc.OutputScore(rubric, &output)

		require.True(t, ok)
		assert.InDelta(t, 3.2, score, 1e-9)
	})

	t.Run("reports no score for an unjudged output", func(t *testing.T) {
		output := testutil.NewTestOutput(uuid.New(), nil, "")

		_, ok := svc.OutputScore(rubric, &output)

		assert.False(t, ok)
	})
}
