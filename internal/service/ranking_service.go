package service

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/promptloop/promptloop/internal/domain"
)

// RankingService reduces head-to-head pairwise matches into win/loss
// tallies and a win rate per model run.
//
// Tie policy: a match with no winner counts toward both participants'
// comparisons without incrementing wins or losses, so a tie lowers both win
// rates. Excluding ties from comparisons (or splitting half-win credit)
// would materially change the numbers; the policy is pinned by tests.
type RankingService struct {
	logger *zap.Logger
}

// NewRankingService creates a new pairwise ranking service
func NewRankingService(logger *zap.Logger) *RankingService {
	return &RankingService{
		logger: logger,
	}
}

// RankRuns tallies the matches. Every run appears in the result: runs that
// never played report the zero entry {0, 0, 0, 0} rather than being
// omitted. Matches naming a run outside the iteration still count for the
// known participant.
func (s *RankingService) RankRuns(runs []domain.ModelRun, matches []domain.PairwiseMatch) map[string]domain.PairwiseRankingEntry {
	entries := make(map[string]domain.PairwiseRankingEntry, len(runs))
	for i := range runs {
		entries[runs[i].ID.String()] = domain.PairwiseRankingEntry{}
	}

	for _, match := range matches {
		a := match.RunIDs[0].String()
		b := match.RunIDs[1].String()

		if entry, ok := entries[a]; ok {
			entry.Comparisons++
			if match.WinnerRunID != nil {
				if *match.WinnerRunID == match.RunIDs[0] {
					entry.Wins++
				} else if *match.WinnerRunID == match.RunIDs[1] {
					entry.Losses++
				}
			}
			entries[a] = entry
		}

		if entry, ok := entries[b]; ok {
			entry.Comparisons++
			if match.WinnerRunID != nil {
				if *match.WinnerRunID == match.RunIDs[1] {
					entry.Wins++
				} else if *match.WinnerRunID == match.RunIDs[0] {
					entry.Losses++
				}
			}
			entries[b] = entry
		}
	}

	for id, entry := range entries {
		if entry.Comparisons > 0 {
			entry.WinRate = float64(entry.Wins) / float64(entry.Comparisons)
			entries[id] = entry
		}
	}

	return entries
}

// ResolveMatches reduces pairwise judgments to matches. Each judgment names
// its own run as the primary participant and resolves the competitor run
// from metadata; judgments whose competitor cannot be resolved are excluded
// here so partially-tagged data degrades gracefully instead of blocking
// aggregation. The winner is the primary run when the winner output belongs
// to it, the competitor when it does not, and nil (a tie) when the judgment
// declares no winner.
func (s *RankingService) ResolveMatches(runs []domain.ModelRun) []domain.PairwiseMatch {
	outputOwner := make(map[uuid.UUID]uuid.UUID)
	for i := range runs {
		for j := range runs[i].Outputs {
			outputOwner[runs[i].Outputs[j].ID] = runs[i].ID
		}
	}

	var matches []domain.PairwiseMatch
	dropped := 0
	for i := range runs {
		run := &runs[i]
		for j := range run.Outputs {
			for k := range run.Outputs[j].Judgments {
				judgment := &run.Outputs[j].Judgments[k]
				if judgment.Mode != domain.JudgmentModePairwise {
					continue
				}

				competitorID, ok := judgment.CompetitorRunID()
				if !ok {
					dropped++
					continue
				}

				match := domain.PairwiseMatch{
					RunIDs: [2]uuid.UUID{run.ID, competitorID},
				}
				if judgment.WinnerOutputID != nil {
					if owner, ok := outputOwner[*judgment.WinnerOutputID]; ok && owner == run.ID {
						winner := run.ID
						match.WinnerRunID = &winner
					} else {
						winner := competitorID
						match.WinnerRunID = &winner
					}
				}
				matches = append(matches, match)
			}
		}
	}

	if dropped > 0 {
		s.logger.Debug("excluded pairwise judgments with unresolvable competitor",
			zap.Int("dropped", dropped),
		)
	}

	return matches
}
