package models

import (
	"encoding/json"
	"time"
)

// LearningEvent is one unit of human feedback tied to a prior estimate or an
// external recognition session. Immutable except for Applied, which flips
// false -> true exactly once; reprocessing an applied event is a no-op.
type LearningEvent struct {
	ID         string          `json:"id"`
	SubjectID  string          `json:"subject_id"`
	Category   string          `json:"category"`
	IsCorrect  *bool           `json:"is_correct,omitempty"`
	Rating     *int            `json:"accuracy_rating,omitempty"`
	Correction json.RawMessage `json:"correction_payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	Applied    bool            `json:"applied"`
}

// Score maps the feedback to [0,1]: 1 for correct, rating/5 when rated.
func (e *LearningEvent) Score() float64 {
	if e.IsCorrect != nil {
		if *e.IsCorrect {
			return 1
		}
		return 0
	}
	if e.Rating != nil {
		return float64(*e.Rating) / 5
	}
	return 0
}

// PerformanceMetric is the per-category accuracy rollup. Fully derived from
// LearningEvent history; safe to rebuild at any time.
type PerformanceMetric struct {
	Category      string    `json:"category"`
	AccuracyImpr  float64   `json:"accuracy_improvement"`
	TotalEvents   int64     `json:"total_learning_events"`
	Corrections   int64     `json:"corrections_applied"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}
