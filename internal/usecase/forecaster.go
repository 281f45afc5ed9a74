package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"CoinPulse/internal/domain/models"
	drepo "CoinPulse/internal/domain/repository"
	"CoinPulse/internal/service/keylock"
	"CoinPulse/internal/services/trend"
	applogger "CoinPulse/pkg/logger"
)

const (
	// modelVersion stamps every forecast row so model changes are auditable.
	modelVersion = "linear-v1"

	// per-step drift is clamped so a short noisy history cannot project a
	// runaway curve
	maxStepDrift = 0.05

	minStepConfidence  = 0.3
	confidenceDecay    = 0.02
	flatConfidence     = 0.4
	directionDeadband  = 0.001
	defaultForecastTTL = time.Hour
)

// Forecaster projects estimate history forward with a linear trend model.
// Forecast rows are immutable; a fresh row within the TTL is served as-is.
// Regeneration shares the per-item lock with the aggregator, so a forecast
// never reads history mid-aggregation.
type Forecaster struct {
	est      drepo.EstimateStore
	forecast drepo.ForecastStore
	locks    *keylock.KeyLock
	metrics  drepo.Metrics
	l        *applogger.Logger
	ttl      time.Duration
	lookback time.Duration
}

type ForecasterOption func(*Forecaster)

// WithForecastTTL sets how long a generated forecast stays fresh.
func WithForecastTTL(d time.Duration) ForecasterOption {
	return func(f *Forecaster) {
		if d > 0 {
			f.ttl = d
		}
	}
}

// WithHistoryLookback bounds how far back estimate history is read.
func WithHistoryLookback(d time.Duration) ForecasterOption {
	return func(f *Forecaster) {
		if d > 0 {
			f.lookback = d
		}
	}
}

func NewForecaster(est drepo.EstimateStore, forecast drepo.ForecastStore, locks *keylock.KeyLock, metrics drepo.Metrics, opts ...ForecasterOption) *Forecaster {
	f := &Forecaster{
		est:      est,
		forecast: forecast,
		locks:    locks,
		metrics:  metrics,
		ttl:      defaultForecastTTL,
		lookback: 90 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SetLogger injects a structured logger.
func (f *Forecaster) SetLogger(l *applogger.Logger) { f.l = l }

// Forecast returns the trend forecast for item over the horizon, reusing the
// latest stored row when it is younger than the TTL and regenerating otherwise.
func (f *Forecaster) Forecast(ctx context.Context, item string, horizon drepo.Horizon) (*models.TrendForecast, error) {
	if item == "" {
		return nil, fmt.Errorf("item required")
	}
	if !drepo.IsValidHorizon(horizon) {
		horizon = drepo.DefaultHorizon()
	}

	latest, err := f.forecast.Latest(ctx, item, horizon)
	if err == nil && time.Since(latest.GeneratedAt) < f.ttl {
		return latest, nil
	}
	if err != nil && !errors.Is(err, drepo.ErrNoData) {
		return nil, fmt.Errorf("latest forecast: %w", err)
	}
	return f.Regenerate(ctx, item, horizon)
}

// Regenerate builds and stores a new forecast row from estimate history,
// ignoring any cached row.
func (f *Forecaster) Regenerate(ctx context.Context, item string, horizon drepo.Horizon) (*models.TrendForecast, error) {
	unlock := f.locks.Lock(item)
	defer unlock()

	now := time.Now()
	history, err := f.est.History(ctx, item, now.Add(-f.lookback), now)
	if err != nil {
		return nil, fmt.Errorf("estimate history: %w", err)
	}
	if len(history) == 0 {
		return nil, drepo.ErrNoData
	}

	values := make([]float64, len(history))
	for i, h := range history {
		values[i] = h.Average
	}
	last := values[len(values)-1]

	fc := &models.TrendForecast{
		ItemID:       item,
		Horizon:      string(horizon),
		GeneratedAt:  now,
		ModelVersion: modelVersion,
	}

	steps := horizon.Steps()
	if len(values) < 2 {
		// too little history to fit anything; project the last value flat with
		// deliberately low confidence
		fc.Direction = models.TrendStable
		fc.TrendStrength = 0
		fc.Series = flatSeries(last, steps)
	} else {
		fit := trend.LinearFit(values)
		drift := clamp(trend.RelativeSlope(values, fit), -maxStepDrift, maxStepDrift)
		strength := trend.Strength(fit)
		fc.Direction = direction(drift)
		fc.TrendStrength = strength

		base := 0.3 + 0.5*strength
		series := make([]models.ForecastStep, steps)
		v := last
		for k := 0; k < steps; k++ {
			v *= 1 + drift
			conf := math.Max(minStepConfidence, base-confidenceDecay*float64(k))
			series[k] = models.ForecastStep{Step: k + 1, Value: v, Confidence: conf}
		}
		fc.Series = series
	}

	if err := f.forecast.Append(ctx, fc); err != nil {
		return nil, fmt.Errorf("store forecast: %w", err)
	}
	f.metrics.RecordLatency("forecast_generate", time.Since(now).Seconds())
	if f.l != nil {
		f.l.Info("forecast generated",
			applogger.String("item", item),
			applogger.String("horizon", string(horizon)),
			applogger.String("direction", fc.Direction),
			applogger.Any("strength", fc.TrendStrength),
			applogger.Int("history_points", len(values)),
		)
	}
	return fc, nil
}

func flatSeries(value float64, steps int) []models.ForecastStep {
	series := make([]models.ForecastStep, steps)
	for k := 0; k < steps; k++ {
		series[k] = models.ForecastStep{Step: k + 1, Value: value, Confidence: flatConfidence}
	}
	return series
}

func direction(drift float64) string {
	switch {
	case drift > directionDeadband:
		return models.TrendRising
	case drift < -directionDeadband:
		return models.TrendFalling
	default:
		return models.TrendStable
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
