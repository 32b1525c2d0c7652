package domain

import (
	"github.com/google/uuid"
)

// ModelRun represents one (model, config, seed) execution within an
// iteration. Immutable once judged.
type ModelRun struct {
	ID           uuid.UUID      `json:"id"`
	IterationID  uuid.UUID      `json:"iterationId"`
	Model        string         `json:"model"`
	ModelParams  map[string]any `json:"modelParams,omitempty"`
	Seed         int64          `json:"seed"`
	Cost         float64        `json:"cost"`
	InputTokens  int64          `json:"inputTokens"`
	OutputTokens int64          `json:"outputTokens"`
	Outputs      []Output       `json:"outputs,omitempty"`
}

// Case represents a dataset case an output responded to, carrying the facet
// metadata used for coverage analysis.
type Case struct {
	ID         uuid.UUID `json:"id"`
	Tags       []string  `json:"tags,omitempty"`
	Difficulty string    `json:"difficulty,omitempty"`
}

// Output represents one model response to one dataset case within a run
type Output struct {
	ID        uuid.UUID  `json:"id"`
	RunID     uuid.UUID  `json:"runId"`
	Case      Case       `json:"case"`
	Content   string     `json:"content,omitempty"`
	Judgments []Judgment `json:"judgments,omitempty"`
}
