package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"CoinPulse/internal/domain/models"
	drepo "CoinPulse/internal/domain/repository"
)

func seedObservations(t *testing.T, fx *engineFixture, item string, obs ...models.PriceObservation) {
	t.Helper()
	ptrs := make([]*models.PriceObservation, len(obs))
	for i := range obs {
		if obs[i].ObservedAt.IsZero() {
			obs[i].ObservedAt = time.Now().Add(-time.Hour)
		}
		obs[i].ItemID = item
		ptrs[i] = &obs[i]
	}
	if err := fx.store.AppendBatch(context.Background(), ptrs); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestAggregateItemBounds(t *testing.T) {
	fx := newFixture()
	agg := NewAggregator(fx.store.ObservationStore(), fx.store.EstimateStore(), fx.registry, fx.locks, nopMetrics{})
	ctx := context.Background()

	seedObservations(t, fx, "sovereign",
		models.PriceObservation{SourceID: "a", Price: 480},
		models.PriceObservation{SourceID: "b", Price: 500},
		models.PriceObservation{SourceID: "c", Price: 520},
	)
	est, err := agg.AggregateItem(ctx, "sovereign")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if est.Low > est.Average || est.Average > est.High {
		t.Fatalf("bounds violated: low=%v avg=%v high=%v", est.Low, est.Average, est.High)
	}
	if est.SourceCount != 3 {
		t.Fatalf("source count = %d, want 3", est.SourceCount)
	}
	if est.Confidence <= 0 || est.Confidence > 0.98 {
		t.Fatalf("confidence out of range: %v", est.Confidence)
	}

	// the estimate is now readable as current
	cur, err := agg.CurrentEstimate(ctx, "sovereign")
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if cur.Average != est.Average {
		t.Fatalf("current avg %v != computed %v", cur.Average, est.Average)
	}
}

func TestAggregateOutlierSuppressedByReliability(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()
	_ = fx.store.Upsert(ctx, &models.SourceRecord{SourceID: "trusted1", Reliability: 0.8, Active: true})
	_ = fx.store.Upsert(ctx, &models.SourceRecord{SourceID: "trusted2", Reliability: 0.8, Active: true})
	_ = fx.store.Upsert(ctx, &models.SourceRecord{SourceID: "sketchy", Reliability: 0.1, Active: true})

	agg := NewAggregator(fx.store.ObservationStore(), fx.store.EstimateStore(), fx.registry, fx.locks, nopMetrics{})
	seedObservations(t, fx, "morgan",
		models.PriceObservation{SourceID: "trusted1", Price: 50},
		models.PriceObservation{SourceID: "trusted2", Price: 52},
		models.PriceObservation{SourceID: "sketchy", Price: 300},
	)
	est, err := agg.AggregateItem(ctx, "morgan")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	// the low-weight outlier cannot drag the band to itself
	if est.High >= 300 {
		t.Fatalf("high = %v, outlier dominated the band", est.High)
	}
	if est.Average >= 150 {
		t.Fatalf("average = %v, outlier dominated the mean", est.Average)
	}
	if est.Low > est.Average || est.Average > est.High {
		t.Fatalf("bounds violated: %+v", est)
	}
}

func TestAggregateConfidenceGrowsWithSources(t *testing.T) {
	fx := newFixture()
	agg := NewAggregator(fx.store.ObservationStore(), fx.store.EstimateStore(), fx.registry, fx.locks, nopMetrics{})
	ctx := context.Background()

	seedObservations(t, fx, "two-sources",
		models.PriceObservation{SourceID: "a", Price: 100},
		models.PriceObservation{SourceID: "b", Price: 102},
	)
	seedObservations(t, fx, "five-sources",
		models.PriceObservation{SourceID: "a", Price: 100},
		models.PriceObservation{SourceID: "b", Price: 101},
		models.PriceObservation{SourceID: "c", Price: 102},
		models.PriceObservation{SourceID: "d", Price: 103},
		models.PriceObservation{SourceID: "e", Price: 104},
	)
	two, err := agg.AggregateItem(ctx, "two-sources")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	five, err := agg.AggregateItem(ctx, "five-sources")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if five.Confidence <= two.Confidence {
		t.Fatalf("confidence did not grow with corroboration: 2-src %v, 5-src %v", two.Confidence, five.Confidence)
	}
}

func TestAggregateSingleObservation(t *testing.T) {
	fx := newFixture()
	agg := NewAggregator(fx.store.ObservationStore(), fx.store.EstimateStore(), fx.registry, fx.locks, nopMetrics{})
	ctx := context.Background()

	seedObservations(t, fx, "lone",
		models.PriceObservation{SourceID: "a", Price: 75},
	)
	est, err := agg.AggregateItem(ctx, "lone")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if est.Low != est.Average || est.High != est.Average {
		t.Fatalf("single observation must collapse the band: %+v", est)
	}
	if est.Confidence > 0.6 {
		t.Fatalf("single observation confidence = %v, want <= 0.6", est.Confidence)
	}
}

func TestAggregateNoDataMarksStale(t *testing.T) {
	fx := newFixture()
	agg := NewAggregator(fx.store.ObservationStore(), fx.store.EstimateStore(), fx.registry, fx.locks, nopMetrics{})
	ctx := context.Background()

	seedObservations(t, fx, "ghosted",
		models.PriceObservation{SourceID: "only", Price: 88},
	)
	if _, err := agg.AggregateItem(ctx, "ghosted"); err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	// the only contributing source goes dark
	rec, _ := fx.store.Get(ctx, "only")
	rec.Active = false
	_ = fx.store.Upsert(ctx, rec)

	_, err := agg.AggregateItem(ctx, "ghosted")
	if !errors.Is(err, drepo.ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
	cur, err := fx.store.Current(ctx, "ghosted")
	if err != nil {
		t.Fatalf("prior estimate must survive: %v", err)
	}
	if !cur.Stale {
		t.Fatalf("prior estimate must be marked stale")
	}
}

func TestAggregateWindowCap(t *testing.T) {
	fx := newFixture()
	agg := NewAggregator(fx.store.ObservationStore(), fx.store.EstimateStore(), fx.registry, fx.locks, nopMetrics{}, WithMaxObservations(3))
	ctx := context.Background()

	// old cheap observations, recent expensive ones; the cap keeps the recent 3
	base := time.Now()
	for i := 0; i < 6; i++ {
		price := 10.0
		if i >= 3 {
			price = 100
		}
		seedObservations(t, fx, "capped", models.PriceObservation{
			SourceID:   fmt.Sprintf("s%d", i),
			Price:      price,
			ObservedAt: base.Add(time.Duration(i-6) * time.Hour),
		})
	}
	est, err := agg.AggregateItem(ctx, "capped")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if est.Average != 100 {
		t.Fatalf("average = %v, want 100 from the 3 newest observations", est.Average)
	}
}

func TestAggregateGradesContributingSources(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()
	_ = fx.store.Upsert(ctx, &models.SourceRecord{SourceID: "close", Reliability: 0.5, Active: true})
	_ = fx.store.Upsert(ctx, &models.SourceRecord{SourceID: "far", Reliability: 0.5, Active: true})

	agg := NewAggregator(fx.store.ObservationStore(), fx.store.EstimateStore(), fx.registry, fx.locks, nopMetrics{})
	seedObservations(t, fx, "graded",
		models.PriceObservation{SourceID: "close", Price: 100},
		models.PriceObservation{SourceID: "close", Price: 101},
		models.PriceObservation{SourceID: "far", Price: 160},
	)
	if _, err := agg.AggregateItem(ctx, "graded"); err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	closeRec, _ := fx.store.Get(ctx, "close")
	farRec, _ := fx.store.Get(ctx, "far")
	if closeRec.Reliability <= farRec.Reliability {
		t.Fatalf("agreeing source %v should outrank disagreeing source %v",
			closeRec.Reliability, farRec.Reliability)
	}
}

func TestAggregateSpecializationBump(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()
	_ = fx.store.Upsert(ctx, &models.SourceRecord{
		SourceID: "specialist", Reliability: 0.5, Active: true,
		Specialization: []string{"coins"},
	})
	_ = fx.store.Upsert(ctx, &models.SourceRecord{SourceID: "generalist", Reliability: 0.5, Active: true})

	agg := NewAggregator(fx.store.ObservationStore(), fx.store.EstimateStore(), fx.registry, fx.locks, nopMetrics{})
	at := time.Now().Add(-time.Hour)
	seedObservations(t, fx, "morgan",
		models.PriceObservation{SourceID: "specialist", Price: 100, Category: "coins", ObservedAt: at},
		models.PriceObservation{SourceID: "generalist", Price: 200, Category: "coins", ObservedAt: at},
	)
	est, err := agg.AggregateItem(ctx, "morgan")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	// equal reliability would mean 150; the specialist's category bonus
	// (0.5 -> 0.55) pulls the mean toward its price:
	// (0.55*100 + 0.5*200) / 1.05
	want := 155.0 / 1.05
	if math.Abs(est.Average-want) > 1e-9 {
		t.Fatalf("average = %v, want %v", est.Average, want)
	}
}
