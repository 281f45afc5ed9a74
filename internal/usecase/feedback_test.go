package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"CoinPulse/internal/domain/models"
)

func newFeedbackEngine(fx *engineFixture, opts ...FeedbackOption) *FeedbackEngine {
	return NewFeedbackEngine(fx.store.LearningStore(), fx.store.MetricStore(), fx.registry, nopMetrics{}, opts...)
}

func boolPtr(b bool) *bool { return &b }
func intPtr(n int) *int    { return &n }

func TestSubmitRequiresShape(t *testing.T) {
	fx := newFixture()
	fb := newFeedbackEngine(fx)
	ctx := context.Background()

	_, err := fb.Submit(ctx, &models.FeedbackRequest{SubjectID: "est-1", Category: "coins"})
	if !errors.Is(err, ErrFeedbackShape) {
		t.Fatalf("err = %v, want ErrFeedbackShape", err)
	}

	bad := 7
	_, err = fb.Submit(ctx, &models.FeedbackRequest{SubjectID: "est-1", Category: "coins", Rating: &bad})
	if err == nil {
		t.Fatalf("rating 7 must be rejected")
	}

	event, err := fb.Submit(ctx, &models.FeedbackRequest{
		SubjectID: "est-1",
		Category:  "coins",
		IsCorrect: boolPtr(true),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if event.ID == "" || event.Applied {
		t.Fatalf("event must be pending with an id: %+v", event)
	}
}

func TestApplyExactlyOnce(t *testing.T) {
	fx := newFixture()
	fb := newFeedbackEngine(fx)
	ctx := context.Background()

	event, err := fb.Submit(ctx, &models.FeedbackRequest{
		SubjectID: "est-1",
		Category:  "coins",
		Rating:    intPtr(4),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := fb.Apply(ctx, event.ID); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := fb.Apply(ctx, event.ID); !errors.Is(err, ErrAlreadyApplied) {
		t.Fatalf("second apply err = %v, want ErrAlreadyApplied", err)
	}
	// the metric must count the event once
	m, err := fb.Performance(ctx, "coins")
	if err != nil {
		t.Fatalf("performance: %v", err)
	}
	if m.TotalEvents != 1 {
		t.Fatalf("total events = %d, want 1", m.TotalEvents)
	}
	// rating 4 -> score 0.8 -> improvement +0.3 over the 0.5 baseline
	if math.Abs(m.AccuracyImpr-0.3) > 1e-9 {
		t.Fatalf("accuracy improvement = %v, want 0.3", m.AccuracyImpr)
	}
}

func TestApplyUnknownEvent(t *testing.T) {
	fx := newFixture()
	fb := newFeedbackEngine(fx)
	if err := fb.Apply(context.Background(), "no-such-event"); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("err = %v, want ErrEventNotFound", err)
	}
}

func TestApplyCorrectionReweightsSource(t *testing.T) {
	fx := newFixture()
	fb := newFeedbackEngine(fx)
	ctx := context.Background()
	_ = fx.store.Upsert(ctx, &models.SourceRecord{SourceID: "ebay", Reliability: 0.5, Active: true})

	event, err := fb.Submit(ctx, &models.FeedbackRequest{
		SubjectID:  "est-1",
		Category:   "coins",
		IsCorrect:  boolPtr(false),
		Correction: json.RawMessage(`{"source_id":"ebay","note":"listing was a replica"}`),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := fb.Apply(ctx, event.ID); err != nil {
		t.Fatalf("apply: %v", err)
	}
	rec, _ := fx.store.Get(ctx, "ebay")
	// score 0 folded at alpha 0.1: 0.5*0.9
	if math.Abs(rec.Reliability-0.45) > 1e-9 {
		t.Fatalf("reliability = %v, want 0.45", rec.Reliability)
	}
	m, _ := fb.Performance(ctx, "coins")
	if m.Corrections != 1 {
		t.Fatalf("corrections = %d, want 1", m.Corrections)
	}
}

func TestSweepDrainsPending(t *testing.T) {
	fx := newFixture()
	fb := newFeedbackEngine(fx, WithSweepBatch(10))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := fb.Submit(ctx, &models.FeedbackRequest{
			SubjectID: "est-1",
			Category:  "banknotes",
			IsCorrect: boolPtr(i%2 == 0),
		}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	applied, err := fb.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if applied != 4 {
		t.Fatalf("applied = %d, want 4", applied)
	}
	// second sweep finds nothing
	applied, err = fb.Sweep(ctx)
	if err != nil || applied != 0 {
		t.Fatalf("second sweep applied = %d, err = %v", applied, err)
	}
	m, err := fb.Performance(ctx, "banknotes")
	if err != nil {
		t.Fatalf("performance: %v", err)
	}
	if m.TotalEvents != 4 {
		t.Fatalf("total events = %d, want 4", m.TotalEvents)
	}
	// two correct, two incorrect: mean 0.5, zero improvement
	if math.Abs(m.AccuracyImpr) > 1e-9 {
		t.Fatalf("accuracy improvement = %v, want 0", m.AccuracyImpr)
	}
}

func TestRebuildMatchesIncremental(t *testing.T) {
	fx := newFixture()
	fb := newFeedbackEngine(fx)
	ctx := context.Background()

	ratings := []int{5, 3, 4, 2}
	for _, r := range ratings {
		event, err := fb.Submit(ctx, &models.FeedbackRequest{
			SubjectID: "est-1",
			Category:  "coins",
			Rating:    intPtr(r),
		})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if err := fb.Apply(ctx, event.ID); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	incremental, err := fb.Performance(ctx, "coins")
	if err != nil {
		t.Fatalf("performance: %v", err)
	}
	rebuilt, err := fb.Rebuild(ctx, "coins")
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if math.Abs(incremental.AccuracyImpr-rebuilt.AccuracyImpr) > 1e-9 {
		t.Fatalf("incremental %v diverged from rebuilt %v", incremental.AccuracyImpr, rebuilt.AccuracyImpr)
	}
	if incremental.TotalEvents != rebuilt.TotalEvents {
		t.Fatalf("event counts diverged: %d vs %d", incremental.TotalEvents, rebuilt.TotalEvents)
	}
}

func TestPerformanceUnknownCategory(t *testing.T) {
	fx := newFixture()
	fb := newFeedbackEngine(fx)
	if _, err := fb.Performance(context.Background(), "stamps"); !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("err = %v, want ErrUnknownCategory", err)
	}
}
