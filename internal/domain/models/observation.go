package models

import (
	"encoding/json"
	"time"
)

// PriceObservation is one raw price data point for an item, normalized to the
// base currency at ingestion. Observations are append-only: once stored they
// are never updated or deleted.
type PriceObservation struct {
	ItemID     string          `json:"item_id"`
	SourceID   string          `json:"source_id"`
	Price      float64         `json:"price"`
	Currency   string          `json:"currency"`
	Category   string          `json:"category,omitempty"`
	ObservedAt time.Time       `json:"observed_at"`
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`
}

// RawObservation is an observation as submitted by a collaborator, before
// validation, item-key normalization, and currency conversion.
type RawObservation struct {
	ItemID     string          `json:"item_id"`
	SourceID   string          `json:"source_id"`
	Price      float64         `json:"price"`
	Currency   string          `json:"currency"`
	ObservedAt time.Time       `json:"observed_at"`
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`
	Category   string          `json:"category,omitempty"`
}

// IngestResult reports the outcome of one ingestion batch.
// Accepted + Rejected + Queued equals the batch size.
type IngestResult struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
	Queued   int `json:"queued"`
}
