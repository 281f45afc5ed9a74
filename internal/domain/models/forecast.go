package models

import "time"

// Trend directions.
const (
	TrendRising  = "rising"
	TrendFalling = "falling"
	TrendStable  = "stable"
)

// ForecastStep is one projected point of a forecast series.
// Confidence is non-increasing across steps of the same forecast.
type ForecastStep struct {
	Step       int     `json:"step"`
	Value      float64 `json:"value"`
	Confidence float64 `json:"confidence"`
}

// TrendForecast is one immutable forecast run for an item and horizon.
// Recomputing appends a new row; readers take the latest by GeneratedAt.
type TrendForecast struct {
	ItemID        string         `json:"item_id"`
	Horizon       string         `json:"horizon"`
	Series        []ForecastStep `json:"predicted_series"`
	Direction     string         `json:"trend_direction"`
	TrendStrength float64        `json:"trend_strength"`
	GeneratedAt   time.Time      `json:"generated_at"`
	ModelVersion  string         `json:"model_version"`
}
