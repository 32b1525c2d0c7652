package domain

import (
	"github.com/google/uuid"
)

// ScoreScale represents the numeric range a criterion is scored on
type ScoreScale struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// RubricCriterion represents one weighted criterion in a rubric
type RubricCriterion struct {
	Name        string     `json:"name" validate:"required,min=1,max=100"`
	Description string     `json:"description,omitempty"`
	Weight      float64    `json:"weight" validate:"min=0,max=1"`
	Scale       ScoreScale `json:"scale"`
}

// Rubric represents an ordered sequence of weighted criteria. Weights are
// expected to sum to roughly 1.0 but composite scoring takes them at face
// value: rescaling a saved rubric would silently change historical
// comparability.
type Rubric struct {
	ID       uuid.UUID         `json:"id"`
	Criteria []RubricCriterion `json:"criteria" validate:"required,min=1,dive"`
}

// TotalWeight returns the sum of all criterion weights
func (r *Rubric) TotalWeight() float64 {
	var total float64
	for _, c := range r.Criteria {
		total += c.Weight
	}
	return total
}

// Criterion returns the criterion with the given name, if present
func (r *Rubric) Criterion(name string) (RubricCriterion, bool) {
	for _, c := range r.Criteria {
		if c.Name == name {
			return c, true
		}
	}
	return RubricCriterion{}, false
}
