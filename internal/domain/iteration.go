package domain

import (
	"time"

	"github.com/google/uuid"
)

// IterationStatus represents the status of an iteration
type IterationStatus string

const (
	IterationStatusPending     IterationStatus = "pending"
	IterationStatusRunning     IterationStatus = "running"
	IterationStatusJudging     IterationStatus = "judging"
	IterationStatusAggregating IterationStatus = "aggregating"
	IterationStatusCompleted   IterationStatus = "completed"
	IterationStatusFailed      IterationStatus = "failed"
)

// IsValid checks if the status is valid
func (s IterationStatus) IsValid() bool {
	switch s {
	case IterationStatusPending, IterationStatusRunning, IterationStatusJudging,
		IterationStatusAggregating, IterationStatusCompleted, IterationStatusFailed:
		return true
	}
	return false
}

// Iteration represents one evaluation pass of a prompt version across a set
// of model configurations. Its Metrics document is extensible: subsystems
// other than the aggregation engine (safety review, budget tracking) write
// their own keys into it, and the engine's merge must preserve them.
type Iteration struct {
	ID              uuid.UUID       `json:"id"`
	ExperimentID    uuid.UUID       `json:"experimentId"`
	PromptVersionID uuid.UUID       `json:"promptVersionId"`
	Status          IterationStatus `json:"status"`
	TotalCost       float64         `json:"totalCost"`
	TotalTokens     int64           `json:"totalTokens"`
	Metrics         map[string]any  `json:"metrics,omitempty"`
	Runs            []ModelRun      `json:"runs,omitempty"`
	Rubric          *Rubric         `json:"rubric,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// IterationList represents a paginated list of iterations
type IterationList struct {
	Iterations []Iteration `json:"iterations"`
	TotalCount int64       `json:"totalCount"`
	HasMore    bool        `json:"hasMore"`
}
