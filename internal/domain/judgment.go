package domain

import (
	"github.com/google/uuid"
)

// JudgmentMode represents how a judge evaluated an output
type JudgmentMode string

const (
	JudgmentModePointwise JudgmentMode = "POINTWISE"
	JudgmentModePairwise  JudgmentMode = "PAIRWISE"
)

// IsValid checks if the judgment mode is valid
func (m JudgmentMode) IsValid() bool {
	switch m {
	case JudgmentModePointwise, JudgmentModePairwise:
		return true
	}
	return false
}

// MetadataKeyCompetitorRun is the judgment metadata key carrying the
// competitor model run id for pairwise judgments.
const MetadataKeyCompetitorRun = "competitorRunId"

// Judgment represents one judge's evaluation of an output. Pointwise
// judgments carry per-criterion scores; pairwise judgments carry a winner
// output reference and metadata naming the competitor run.
type Judgment struct {
	ID             uuid.UUID          `json:"id"`
	OutputID       uuid.UUID          `json:"outputId"`
	Judge          string             `json:"judge,omitempty"`
	Mode           JudgmentMode       `json:"mode"`
	Scores         map[string]float64 `json:"scores,omitempty"`
	WinnerOutputID *uuid.UUID         `json:"winnerOutputId,omitempty"`
	Metadata       map[string]any     `json:"metadata,omitempty"`
}

// CompetitorRunID resolves the competitor model run id from pairwise
// judgment metadata. Returns false when the metadata is missing or not a
// parseable id; such judgments are excluded from ranking rather than
// treated as errors.
func (j *Judgment) CompetitorRunID() (uuid.UUID, bool) {
	if j.Metadata == nil {
		return uuid.Nil, false
	}
	raw, ok := j.Metadata[MetadataKeyCompetitorRun].(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// PairwiseMatch is a pairwise judgment reduced to the runs it compares.
// WinnerRunID is nil for a declared tie.
type PairwiseMatch struct {
	RunIDs      [2]uuid.UUID `json:"runIds"`
	WinnerRunID *uuid.UUID   `json:"winnerRunId,omitempty"`
}
