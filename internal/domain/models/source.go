package models

import "time"

// DefaultReliability is the prior reliability for a source the registry has
// never graded. Unknown sources are under-weighted, never rejected.
const DefaultReliability = 0.5

// SourceRecord identifies one external price feed and its learned reliability.
// Mutated only by the feedback loop / registry; aggregation reads it.
// Sources are never deleted, only deactivated when stale.
type SourceRecord struct {
	SourceID       string    `json:"source_id"`
	DisplayName    string    `json:"display_name"`
	Specialization []string  `json:"category_specialization,omitempty"`
	Reliability    float64   `json:"reliability_score"`
	Observations   int64     `json:"observation_count"`
	LastSeenAt     time.Time `json:"last_seen_at"`
	Active         bool      `json:"is_active"`
}

// SpecializesIn reports whether the source is known to be strong in category.
func (s *SourceRecord) SpecializesIn(category string) bool {
	for _, c := range s.Specialization {
		if c == category {
			return true
		}
	}
	return false
}
