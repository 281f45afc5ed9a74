package models

import (
	"encoding/json"
	"time"
)

// Requests for the engine HTTP endpoints. Defined in domain for consistency and reuse.

type IngestRequest struct {
	Observations []ObservationInput `json:"observations" validate:"required,min=1,max=1000,dive"`
}

type ObservationInput struct {
	ItemID     string          `json:"item_id" validate:"required"`
	SourceID   string          `json:"source_id" validate:"required"`
	Price      float64         `json:"price" validate:"required"`
	Currency   string          `json:"currency" default:"USD"`
	ObservedAt time.Time       `json:"observed_at"`
	Category   string          `json:"category"`
	RawPayload json.RawMessage `json:"raw_payload"`
}

type EstimateRequest struct {
	Item string `query:"item" json:"item" validate:"required"`
}

type ForecastRequest struct {
	Item    string `query:"item" json:"item" validate:"required"`
	Horizon string `query:"horizon" json:"horizon" default:"short" validate:"oneof=short medium long"`
}

type FeedbackRequest struct {
	SubjectID  string          `json:"subject_id" validate:"required"`
	Category   string          `json:"category" validate:"required"`
	IsCorrect  *bool           `json:"is_correct"`
	Rating     *int            `json:"accuracy_rating" validate:"omitempty,gte=1,lte=5"`
	Correction json.RawMessage `json:"correction_payload"`
}

type PerformanceRequest struct {
	Category string `query:"category" json:"category"`
}

type HistoryRequest struct {
	Item string `query:"item" json:"item" validate:"required"`
	From string `query:"from" json:"from"`
	To   string `query:"to" json:"to"`
}
