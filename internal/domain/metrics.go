package domain

import (
	"encoding/json"
)

// Metrics document keys written by the aggregation engine. Other subsystems
// write their own keys (safetySummary, budgetStatus) into the same document.
const (
	MetricsKeyCompositeScores     = "compositeScores"
	MetricsKeyConfidenceIntervals = "confidenceIntervals"
	MetricsKeyPairwiseRanking     = "pairwiseRanking"
	MetricsKeyFacetAnalysis       = "facetAnalysis"
	MetricsKeyCoverageMatrix      = "coverageMatrix"
	MetricsKeyCompositeScore      = "compositeScore"
)

// ConfidenceInterval represents a bootstrap 95% confidence interval around a
// run's composite score
type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// PairwiseRankingEntry represents a run's head-to-head aggregate. Ties count
// toward Comparisons without incrementing Wins or Losses, so
// Comparisons >= Wins + Losses.
type PairwiseRankingEntry struct {
	WinRate     float64 `json:"winRate"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	Comparisons int     `json:"comparisons"`
}

// CoverageCell represents one (tag, difficulty) bucket of the coverage matrix
type CoverageCell struct {
	Count    int     `json:"count"`
	AvgScore float64 `json:"avgScore"`
}

// IterationMetrics is the payload the aggregation engine computes for an
// iteration. It is merged into the iteration's stored metrics document and
// emitted on the event stream. Map keys are model run ids.
type IterationMetrics struct {
	CompositeScores     map[string]float64                 `json:"compositeScores"`
	ConfidenceIntervals map[string]ConfidenceInterval      `json:"confidenceIntervals"`
	PairwiseRanking     map[string]PairwiseRankingEntry    `json:"pairwiseRanking"`
	FacetAnalysis       map[string]float64                 `json:"facetAnalysis"`
	CoverageMatrix      map[string]map[string]CoverageCell `json:"coverageMatrix"`
	CompositeScore      float64                            `json:"compositeScore"`
	TotalCost           float64                            `json:"totalCost"`
	TotalTokens         int64                              `json:"totalTokens"`
}

// Document renders the payload as a generic metrics document suitable for
// merging into an iteration's stored metrics value.
func (m *IterationMetrics) Document() (map[string]any, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// MergeMetrics merges the computed document into an existing stored metrics
// document, preserving keys the engine does not own. A nil existing document
// is treated as empty. The returned map is a fresh copy.
func MergeMetrics(existing, computed map[string]any) map[string]any {
	merged := make(map[string]any, len(existing)+len(computed))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range computed {
		merged[k] = v
	}
	return merged
}

// SafetySummary represents the safety subsystem's per-iteration rollup. The
// aggregation engine never writes it; it only has to survive metric merges
// and pass through the event stream.
type SafetySummary struct {
	FlaggedOutputs int            `json:"flaggedOutputs"`
	Categories     map[string]int `json:"categories,omitempty"`
	ReviewRequired bool           `json:"reviewRequired"`
}
