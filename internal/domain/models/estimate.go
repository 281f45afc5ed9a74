package models

import "time"

// AggregatedEstimate is the engine's current belief about an item's value.
// Exactly one current row exists per item; superseded rows live on as history.
// Invariant: Low <= Average <= High.
type AggregatedEstimate struct {
	ItemID      string    `json:"item_id"`
	Low         float64   `json:"low"`
	Average     float64   `json:"average"`
	High        float64   `json:"high"`
	Confidence  float64   `json:"confidence"`
	SourceCount int       `json:"contributing_source_count"`
	ComputedAt  time.Time `json:"computed_at"`
	Stale       bool      `json:"stale,omitempty"`
}
