package service

import (
	"go.uber.org/zap"

	"github.com/promptloop/promptloop/internal/domain"
)

// CompositeService reduces rubric-weighted per-criterion judgments into one
// composite score per model run and one aggregate per iteration.
type CompositeService struct {
	logger *zap.Logger
}

// NewCompositeService creates a new composite scoring service
func NewCompositeService(logger *zap.Logger) *CompositeService {
	return &CompositeService{
		logger: logger,
	}
}

// ScoreRuns computes the composite score for every run and the iteration
// level composite (the simple mean across runs). Every run appears in the
// returned map; runs with no scoreable judgments score 0 rather than being
// omitted, and an iteration with no runs aggregates to 0.
//
// Criterion weights are applied exactly as saved on the rubric. When weights
// do not sum to 1 the composite is taken at face value: rescaling would
// silently change comparability against historical iterations scored under
// the same rubric.
func (s *CompositeService) ScoreRuns(rubric *domain.Rubric, runs []domain.ModelRun) (map[string]float64, float64) {
	scores := make(map[string]float64, len(runs))

	var sum float64
	for i := range runs {
		run := &runs[i]
		score := s.runScore(rubric, run)
		scores[run.ID.String()] = score
		sum += score
	}

	var iterationScore float64
	if len(runs) > 0 {
		iterationScore = sum / float64(len(runs))
	}

	return scores, iterationScore
}

// runScore computes one run's composite: per criterion, the mean of that
// criterion's score across all pointwise judgments on all outputs of the
// run, then the weighted sum. Judgments missing a criterion are ignored for
// that criterion; criteria with no observations contribute nothing.
func (s *CompositeService) runScore(rubric *domain.Rubric, run *domain.ModelRun) float64 {
	var composite float64
	for _, criterion := range rubric.Criteria {
		var total float64
		var count int
		for _, output := range run.Outputs {
			for _, judgment := range output.Judgments {
				if judgment.Mode != domain.JudgmentModePointwise {
					continue
				}
				value, ok := judgment.Scores[criterion.Name]
				if !ok {
					continue
				}
				total += value
				count++
			}
		}
		if count == 0 {
			continue
		}
		composite += criterion.Weight * (total / float64(count))
	}
	return composite
}

// OutputScore computes the rubric-weighted composite of a single output from
// its own pointwise judgments. This is the observation unit the bootstrap
// resampler works on. Returns false when the output has no pointwise scores.
func (s *CompositeService) OutputScore(rubric *domain.Rubric, output *domain.Output) (float64, bool) {
	var composite float64
	scored := false
	for _, criterion := range rubric.Criteria {
		var total float64
		var count int
		for _, judgment := range output.Judgments {
			if judgment.Mode != domain.JudgmentModePointwise {
				continue
			}
			value, ok := judgment.Scores[criterion.Name]
			if !ok {
				continue
			}
			total += value
			count++
		}
		if count == 0 {
			continue
		}
		composite += criterion.Weight * (total / float64(count))
		scored = true
	}
	return composite, scored
}
