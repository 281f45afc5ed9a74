package repository

import (
	"context"
	"errors"
	"time"

	"CoinPulse/internal/domain/models"
)

// ErrNoData marks the expected "no estimate/forecast yet" steady state.
// Callers translate it into an explicit no-data result, never a failure.
var ErrNoData = errors.New("no data")

// ObservationStore is the append-only time-series log of price observations,
// keyed by (item_id, observed_at). No update or delete is exposed; corrections
// happen by appending a later observation.
type ObservationStore interface {
	Append(ctx context.Context, o *models.PriceObservation) error
	AppendBatch(ctx context.Context, obs []*models.PriceObservation) error
	// Window returns observations for item since the cutoff, ascending by
	// observed_at, capped at limit most recent rows.
	Window(ctx context.Context, item string, since time.Time, limit int) ([]models.PriceObservation, error)
	Health(ctx context.Context) error
}

// EstimateStore keeps one current AggregatedEstimate per item (upsert) plus an
// append-only history partition of superseded rows.
type EstimateStore interface {
	// UpsertCurrent replaces the current estimate for the item and appends it
	// to the history partition.
	UpsertCurrent(ctx context.Context, e *models.AggregatedEstimate) error
	Current(ctx context.Context, item string) (*models.AggregatedEstimate, error)
	History(ctx context.Context, item string, from, to time.Time) ([]models.AggregatedEstimate, error)
	// MarkStale flags the current estimate without deleting it.
	MarkStale(ctx context.Context, item string) error
}

// ForecastStore is append-only; readers take the latest row per (item, horizon).
type ForecastStore interface {
	Append(ctx context.Context, f *models.TrendForecast) error
	Latest(ctx context.Context, item string, horizon Horizon) (*models.TrendForecast, error)
}

// SourceStore persists SourceRecord rows. Rows are never deleted.
type SourceStore interface {
	Get(ctx context.Context, sourceID string) (*models.SourceRecord, error)
	Upsert(ctx context.Context, s *models.SourceRecord) error
	List(ctx context.Context, activeOnly bool) ([]models.SourceRecord, error)
	// Touch bumps observation_count and last_seen_at for an incoming observation.
	Touch(ctx context.Context, sourceID string, seenAt time.Time) error
	DeactivateStale(ctx context.Context, olderThan time.Time) (int, error)
}

// LearningStore persists LearningEvent rows; only the applied flag mutates.
type LearningStore interface {
	Insert(ctx context.Context, e *models.LearningEvent) error
	Get(ctx context.Context, id string) (*models.LearningEvent, error)
	// Pending returns up to limit events with applied=false, oldest first.
	Pending(ctx context.Context, limit int) ([]models.LearningEvent, error)
	// MarkApplied flips applied false->true. Returns false if it already was
	// applied, making reapplication detectable and idempotent.
	MarkApplied(ctx context.Context, id string) (bool, error)
	ByCategory(ctx context.Context, category string, since time.Time) ([]models.LearningEvent, error)
}

// MetricStore persists per-category performance rollups.
type MetricStore interface {
	Get(ctx context.Context, category string) (*models.PerformanceMetric, error)
	Upsert(ctx context.Context, m *models.PerformanceMetric) error
	List(ctx context.Context) ([]models.PerformanceMetric, error)
}
