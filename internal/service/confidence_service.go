package service

import (
	"crypto/sha256"
	"encoding/binary"
	"math/rand/v2"
	"sort"

	"go.uber.org/zap"

	"github.com/promptloop/promptloop/internal/domain"
)

// ConfidenceConfig configures the bootstrap estimator
type ConfidenceConfig struct {
	// Samples is the number of bootstrap resamples per run.
	Samples int
	// Seed makes results reproducible; the orchestrator passes the
	// iteration id so the same iteration always yields the same bounds.
	Seed string
}

// ConfidenceService estimates a 95% bootstrap confidence interval around
// each run's composite score.
//
// The resampling unit is the per-output composite score: each output's
// rubric-weighted mean over its own judgments is one observation, and
// resamples draw with replacement from those observations. The generator is
// PCG-XSL-RR 128/64 (math/rand/v2 NewPCG), seeded with the first 16 bytes
// of SHA-256(seed) split into two big-endian uint64s; the algorithm is part
// of the contract since the bounds must be bit-identical across repeated
// invocations with the same inputs.
type ConfidenceService struct {
	composite *CompositeService
	logger    *zap.Logger
}

// NewConfidenceService creates a new confidence interval service
func NewConfidenceService(composite *CompositeService, logger *zap.Logger) *ConfidenceService {
	return &ConfidenceService{
		composite: composite,
		logger:    logger,
	}
}

// EstimateRuns computes the confidence interval for every run. Runs with no
// observations report {0, 0}; runs with a single observation report the
// degenerate interval collapsing on that score.
func (s *ConfidenceService) EstimateRuns(
	rubric *domain.Rubric,
	runs []domain.ModelRun,
	cfg ConfidenceConfig,
) map[string]domain.ConfidenceInterval {
	intervals := make(map[string]domain.ConfidenceInterval, len(runs))

	for i := range runs {
		run := &runs[i]
		observations := s.observations(rubric, run)
		rng := newSeededRand(cfg.Seed, run.ID.String())
		intervals[run.ID.String()] = s.estimate(observations, cfg.Samples, rng)
	}

	return intervals
}

// observations collects the per-output composite scores of a run in output
// order, so resampling is deterministic for a fixed data set.
func (s *ConfidenceService) observations(rubric *domain.Rubric, run *domain.ModelRun) []float64 {
	observations := make([]float64, 0, len(run.Outputs))
	for j := range run.Outputs {
		if score, ok := s.composite.OutputScore(rubric, &run.Outputs[j]); ok {
			observations = append(observations, score)
		}
	}
	return observations
}

// estimate draws samples bootstrap resamples with replacement, each the size
// of the observation set, and reports the 2.5th and 97.5th percentiles of
// the resample means.
func (s *ConfidenceService) estimate(observations []float64, samples int, rng *rand.Rand) domain.ConfidenceInterval {
	switch len(observations) {
	case 0:
		return domain.ConfidenceInterval{}
	case 1:
		return domain.ConfidenceInterval{Lower: observations[0], Upper: observations[0]}
	}

	means := make([]float64, samples)
	n := len(observations)
	for i := 0; i < samples; i++ {
		var sum float64
		for j := 0; j < n; j++ {
			sum += observations[rng.IntN(n)]
		}
		means[i] = sum / float64(n)
	}

	sort.Float64s(means)
	return domain.ConfidenceInterval{
		Lower: percentile(means, 2.5),
		Upper: percentile(means, 97.5),
	}
}

// newSeededRand derives a deterministic generator from the iteration seed
// and run id, so per-run intervals are independent of run iteration order.
func newSeededRand(seed, runID string) *rand.Rand {
	digest := sha256.Sum256([]byte(seed + ":" + runID))
	hi := binary.BigEndian.Uint64(digest[0:8])
	lo := binary.BigEndian.Uint64(digest[8:16])
	return rand.New(rand.NewPCG(hi, lo))
}

// percentile returns the p-th percentile of sorted values using linear
// interpolation between closest ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}

	index := (p / 100) * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1

	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	fraction := index - float64(lower)
	return sorted[lower]*(1-fraction) + sorted[upper]*fraction
}
