package service

import (
	"go.uber.org/zap"

	"github.com/promptloop/promptloop/internal/domain"
)

// CoverageService buckets scored outputs by case metadata (tag, difficulty)
// to report coverage density and mean score per bucket.
type CoverageService struct {
	composite *CompositeService
	logger    *zap.Logger
}

// NewCoverageService creates a new facet coverage service
func NewCoverageService(composite *CompositeService, logger *zap.Logger) *CoverageService {
	return &CoverageService{
		composite: composite,
		logger:    logger,
	}
}

// Analyze buckets every scored output by (tag, difficulty) for every tag it
// carries, so an output with multiple tags contributes to multiple buckets.
// The returned facet analysis is the same accumulation collapsed to the tag
// axis alone, a simpler "which categories are weak" view. Unscored outputs
// and outputs without tags or difficulty are skipped for the axes they lack.
func (s *CoverageService) Analyze(rubric *domain.Rubric, runs []domain.ModelRun) (map[string]map[string]domain.CoverageCell, map[string]float64) {
	matrix := make(map[string]map[string]domain.CoverageCell)
	facetTotals := make(map[string]float64)
	facetCounts := make(map[string]int)

	for i := range runs {
		for j := range runs[i].Outputs {
			output := &runs[i].Outputs[j]
			score, ok := s.composite.OutputScore(rubric, output)
			if !ok {
				continue
			}

			for _, tag := range output.Case.Tags {
				facetTotals[tag] += score
				facetCounts[tag]++

				if output.Case.Difficulty == "" {
					continue
				}
				row, ok := matrix[tag]
				if !ok {
					row = make(map[string]domain.CoverageCell)
					matrix[tag] = row
				}
				cell := row[output.Case.Difficulty]
				// Running mean keeps the cell exact without storing totals.
				cell.AvgScore = (cell.AvgScore*float64(cell.Count) + score) / float64(cell.Count+1)
				cell.Count++
				row[output.Case.Difficulty] = cell
			}
		}
	}

	facets := make(map[string]float64, len(facetTotals))
	for tag, total := range facetTotals {
		facets[tag] = total / float64(facetCounts[tag])
	}

	return matrix, facets
}
