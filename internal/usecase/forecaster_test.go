package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"CoinPulse/internal/domain/models"
	drepo "CoinPulse/internal/domain/repository"
)

func seedHistory(t *testing.T, fx *engineFixture, item string, values ...float64) {
	t.Helper()
	now := time.Now()
	for i, v := range values {
		err := fx.store.UpsertCurrent(context.Background(), &models.AggregatedEstimate{
			ItemID:     item,
			Average:    v,
			Low:        v * 0.95,
			High:       v * 1.05,
			Confidence: 0.8,
			ComputedAt: now.Add(time.Duration(i-len(values)) * time.Hour),
		})
		if err != nil {
			t.Fatalf("seed history: %v", err)
		}
	}
}

func TestForecastRisingTrend(t *testing.T) {
	fx := newFixture()
	fc := NewForecaster(fx.store.EstimateStore(), fx.store.ForecastStore(), fx.locks, nopMetrics{})
	ctx := context.Background()

	seedHistory(t, fx, "morgan", 100, 102, 104, 106, 108, 110, 112, 114, 116, 118)
	got, err := fc.Forecast(ctx, "morgan", drepo.HorizonShort)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if got.Direction != models.TrendRising {
		t.Fatalf("direction = %q, want rising", got.Direction)
	}
	if len(got.Series) != 7 {
		t.Fatalf("series length = %d, want 7", len(got.Series))
	}
	if got.ModelVersion != "linear-v1" {
		t.Fatalf("model version = %q", got.ModelVersion)
	}
	prev := 118.0
	prevConf := math.Inf(1)
	for _, step := range got.Series {
		if step.Value <= prev {
			t.Fatalf("step %d value %v not rising from %v", step.Step, step.Value, prev)
		}
		if step.Confidence > prevConf {
			t.Fatalf("step %d confidence %v increased from %v", step.Step, step.Confidence, prevConf)
		}
		if step.Confidence < 0.3 {
			t.Fatalf("step %d confidence %v below floor", step.Step, step.Confidence)
		}
		prev = step.Value
		prevConf = step.Confidence
	}
}

func TestForecastDriftClamped(t *testing.T) {
	fx := newFixture()
	fc := NewForecaster(fx.store.EstimateStore(), fx.store.ForecastStore(), fx.locks, nopMetrics{})
	ctx := context.Background()

	// steep trend: raw relative slope far above the per-step cap
	seedHistory(t, fx, "meteoric", 10, 20, 30, 40, 50, 60, 70, 80, 90, 100)
	got, err := fc.Forecast(ctx, "meteoric", drepo.HorizonShort)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if math.Abs(got.Series[0].Value-105) > 1e-6 {
		t.Fatalf("first step = %v, want 105 (5%% clamp on 100)", got.Series[0].Value)
	}
}

func TestForecastFlatWithThinHistory(t *testing.T) {
	fx := newFixture()
	fc := NewForecaster(fx.store.EstimateStore(), fx.store.ForecastStore(), fx.locks, nopMetrics{})
	ctx := context.Background()

	seedHistory(t, fx, "thin", 250)
	got, err := fc.Forecast(ctx, "thin", drepo.HorizonMedium)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if got.Direction != models.TrendStable || got.TrendStrength != 0 {
		t.Fatalf("thin history must be stable with zero strength: %+v", got)
	}
	if len(got.Series) != 30 {
		t.Fatalf("series length = %d, want 30", len(got.Series))
	}
	for _, step := range got.Series {
		if step.Value != 250 {
			t.Fatalf("flat projection drifted to %v", step.Value)
		}
		if step.Confidence != 0.4 {
			t.Fatalf("flat confidence = %v, want 0.4", step.Confidence)
		}
	}
}

func TestForecastNoHistory(t *testing.T) {
	fx := newFixture()
	fc := NewForecaster(fx.store.EstimateStore(), fx.store.ForecastStore(), fx.locks, nopMetrics{})
	_, err := fc.Forecast(context.Background(), "unseen", drepo.HorizonShort)
	if !errors.Is(err, drepo.ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
}

func TestForecastHorizonSteps(t *testing.T) {
	fx := newFixture()
	fc := NewForecaster(fx.store.EstimateStore(), fx.store.ForecastStore(), fx.locks, nopMetrics{})
	ctx := context.Background()
	seedHistory(t, fx, "horizons", 100, 101, 102)

	for horizon, want := range map[drepo.Horizon]int{
		drepo.HorizonShort:  7,
		drepo.HorizonMedium: 30,
		drepo.HorizonLong:   90,
	} {
		got, err := fc.Forecast(ctx, "horizons", horizon)
		if err != nil {
			t.Fatalf("forecast %s: %v", horizon, err)
		}
		if len(got.Series) != want {
			t.Fatalf("%s series length = %d, want %d", horizon, len(got.Series), want)
		}
	}

	// unsupported horizon falls back to the default
	got, err := fc.Forecast(ctx, "horizons", drepo.Horizon("fortnight"))
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if got.Horizon != string(drepo.HorizonShort) {
		t.Fatalf("horizon = %q, want short", got.Horizon)
	}
}

func TestForecastReusedWithinTTL(t *testing.T) {
	fx := newFixture()
	fc := NewForecaster(fx.store.EstimateStore(), fx.store.ForecastStore(), fx.locks, nopMetrics{}, WithForecastTTL(time.Hour))
	ctx := context.Background()
	seedHistory(t, fx, "cached", 100, 102, 104)

	first, err := fc.Forecast(ctx, "cached", drepo.HorizonShort)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	second, err := fc.Forecast(ctx, "cached", drepo.HorizonShort)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if !second.GeneratedAt.Equal(first.GeneratedAt) {
		t.Fatalf("fresh forecast regenerated within TTL")
	}

	// explicit regeneration appends a new immutable row
	third, err := fc.Regenerate(ctx, "cached", drepo.HorizonShort)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if !third.GeneratedAt.After(first.GeneratedAt) {
		t.Fatalf("regenerate must produce a newer row")
	}
}

func TestRegenerateSerializedPerItem(t *testing.T) {
	fx := newFixture()
	fc := NewForecaster(fx.store.EstimateStore(), fx.store.ForecastStore(), fx.locks, nopMetrics{})
	seedHistory(t, fx, "morgan", 100, 102, 104)

	unlock := fx.locks.Lock("morgan")
	done := make(chan struct{})
	go func() {
		_, _ = fc.Regenerate(context.Background(), "morgan", drepo.HorizonShort)
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("regenerate ran while the item lock was held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("regenerate did not resume after unlock")
	}
}
