package registry

import (
	"context"
	"math"
	"testing"
	"time"

	"CoinPulse/internal/domain/models"
	"CoinPulse/internal/repository"
)

func TestWeightUnknownSourceGetsPrior(t *testing.T) {
	r := New(repository.NewMemoryStore())
	w := r.Weight(context.Background(), "never-seen", "")
	if w != models.DefaultReliability {
		t.Fatalf("weight = %v, want prior %v", w, models.DefaultReliability)
	}
}

func TestWeightInactiveSourceIsZero(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()
	_ = store.Upsert(ctx, &models.SourceRecord{SourceID: "dead", Reliability: 0.9, Active: false})

	r := New(store)
	if w := r.Weight(ctx, "dead", ""); w != 0 {
		t.Fatalf("inactive weight = %v, want 0", w)
	}
}

func TestWeightSpecializationBump(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()
	_ = store.Upsert(ctx, &models.SourceRecord{
		SourceID:       "numis",
		Reliability:    0.7,
		Specialization: []string{"coins"},
		Active:         true,
	})

	r := New(store)
	plain := r.Weight(ctx, "numis", "banknotes")
	bumped := r.Weight(ctx, "numis", "coins")
	if plain != 0.7 {
		t.Fatalf("non-specialized weight = %v, want 0.7", plain)
	}
	if math.Abs(bumped-0.75) > 1e-9 {
		t.Fatalf("specialized weight = %v, want 0.75", bumped)
	}
}

func TestObserveAutoCreatesAtPrior(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()
	r := New(store)

	seen := time.Now()
	if err := r.Observe(ctx, "fresh", seen); err != nil {
		t.Fatalf("observe: %v", err)
	}
	rec, err := store.Get(ctx, "fresh")
	if err != nil || rec == nil {
		t.Fatalf("expected record, got %v, %v", rec, err)
	}
	if rec.Reliability != models.DefaultReliability || !rec.Active {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Observations != 1 || !rec.LastSeenAt.Equal(seen) {
		t.Fatalf("unexpected counters %+v", rec)
	}
}

func TestRecordAgreementEMA(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()
	_ = store.Upsert(ctx, &models.SourceRecord{SourceID: "s1", Reliability: 0.5, Active: true})

	r := New(store, WithAlpha(0.1))
	agg := &models.AggregatedEstimate{ItemID: "item", Average: 100}

	// within one std dev: signal 1 -> 0.5*0.9 + 1*0.1
	if err := r.RecordAgreement(ctx, "s1", 102, agg, 5); err != nil {
		t.Fatalf("agreement: %v", err)
	}
	rec, _ := store.Get(ctx, "s1")
	if math.Abs(rec.Reliability-0.55) > 1e-9 {
		t.Fatalf("reliability = %v, want 0.55", rec.Reliability)
	}

	// far outside: signal 0 -> 0.55*0.9
	if err := r.RecordAgreement(ctx, "s1", 300, agg, 5); err != nil {
		t.Fatalf("agreement: %v", err)
	}
	rec, _ = store.Get(ctx, "s1")
	if math.Abs(rec.Reliability-0.495) > 1e-9 {
		t.Fatalf("reliability = %v, want 0.495", rec.Reliability)
	}
}

func TestRecordAgreementDegenerateSpread(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()
	_ = store.Upsert(ctx, &models.SourceRecord{SourceID: "s1", Reliability: 0.5, Active: true})

	r := New(store, WithAlpha(0.1))
	agg := &models.AggregatedEstimate{ItemID: "item", Average: 100}

	// zero std dev falls back to a 5% band around the average
	if err := r.RecordAgreement(ctx, "s1", 104, agg, 0); err != nil {
		t.Fatalf("agreement: %v", err)
	}
	rec, _ := store.Get(ctx, "s1")
	if math.Abs(rec.Reliability-0.55) > 1e-9 {
		t.Fatalf("reliability = %v, want 0.55", rec.Reliability)
	}
}

func TestRecordFeedback(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()
	_ = store.Upsert(ctx, &models.SourceRecord{SourceID: "s1", Reliability: 0.5, Active: true})

	r := New(store, WithAlpha(0.1))
	if err := r.RecordFeedback(ctx, "s1", 1); err != nil {
		t.Fatalf("feedback: %v", err)
	}
	rec, _ := store.Get(ctx, "s1")
	if math.Abs(rec.Reliability-0.55) > 1e-9 {
		t.Fatalf("reliability = %v, want 0.55", rec.Reliability)
	}

	// feedback about a source the registry never saw is a silent no-op
	if err := r.RecordFeedback(ctx, "ghost", 1); err != nil {
		t.Fatalf("unknown source feedback: %v", err)
	}
	if rec, _ := store.Get(ctx, "ghost"); rec != nil {
		t.Fatalf("unknown source must not be created by feedback")
	}
}

func TestDeactivateStale(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()
	now := time.Now()
	_ = store.Upsert(ctx, &models.SourceRecord{SourceID: "old", Reliability: 0.8, Active: true, LastSeenAt: now.Add(-48 * time.Hour)})
	_ = store.Upsert(ctx, &models.SourceRecord{SourceID: "new", Reliability: 0.8, Active: true, LastSeenAt: now})

	r := New(store)
	n, err := r.DeactivateStale(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if n != 1 {
		t.Fatalf("deactivated %d, want 1", n)
	}
	old, _ := store.Get(ctx, "old")
	if old.Active {
		t.Fatalf("stale source still active")
	}
	// record is kept for audit, not deleted
	if old.Reliability != 0.8 {
		t.Fatalf("deactivation must not touch reliability")
	}
}
