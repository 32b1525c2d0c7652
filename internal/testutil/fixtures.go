package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/promptloop/promptloop/internal/domain"
)

// NewTestRubric creates a rubric with the given name/weight pairs, all
// scored on a 1..10 scale.
func NewTestRubric(criteria map[string]float64) *domain.Rubric {
	rubric := &domain.Rubric{ID: uuid.New()}
	for name, weight := range criteria {
		rubric.Criteria = append(rubric.Criteria, domain.RubricCriterion{
			Name:   name,
			Weight: weight,
			Scale:  domain.ScoreScale{Min: 1, Max: 10},
		})
	}
	return rubric
}

// NewTestIteration creates a test iteration with default values.
func NewTestIteration() *domain.Iteration {
	return &domain.Iteration{
		ID:           uuid.New(),
		ExperimentID: uuid.New(),
		Status:       domain.IterationStatusAggregating,
		Metrics:      map[string]any{},
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}

// NewTestRun creates a test model run attached to the given iteration.
func NewTestRun(iterationID uuid.UUID, model string) domain.ModelRun {
	return domain.ModelRun{
		ID:          uuid.New(),
		IterationID: iterationID,
		Model:       model,
		Seed:        42,
	}
}

// NewTestOutput creates an output for the run answering a case with the
// given facet metadata.
func NewTestOutput(runID uuid.UUID, tags []string, difficulty string) domain.Output {
	return domain.Output{
		ID:    uuid.New(),
		RunID: runID,
		Case: domain.Case{
			ID:         uuid.New(),
			Tags:       tags,
			Difficulty: difficulty,
		},
		Content: "test output",
	}
}

// NewPointwiseJudgment creates a pointwise judgment carrying the given
// per-criterion scores.
func NewPointwiseJudgment(outputID uuid.UUID, scores map[string]float64) domain.Judgment {
	return domain.Judgment{
		ID:       uuid.New(),
		OutputID: outputID,
		Judge:    "test-judge",
		Mode:     domain.JudgmentModePointwise,
		Scores:   scores,
	}
}

// NewPairwiseJudgment creates a pairwise judgment on the output naming the
// competitor run. winnerOutputID nil declares a tie.
func NewPairwiseJudgment(outputID, competitorRunID uuid.UUID, winnerOutputID *uuid.UUID) domain.Judgment {
	return domain.Judgment{
		ID:             uuid.New(),
		OutputID:       outputID,
		Judge:          "test-judge",
		Mode:           domain.JudgmentModePairwise,
		WinnerOutputID: winnerOutputID,
		Metadata: map[string]any{
			domain.MetadataKeyCompetitorRun: competitorRunID.String(),
		},
	}
}

// UUIDPtr returns a pointer to the given id.
func UUIDPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
