package usecase

import (
	"context"
	"testing"

	"CoinPulse/internal/domain/models"
)

func TestApplyFeedbackJobHandle(t *testing.T) {
	fx := newFixture()
	fb := newFeedbackEngine(fx)
	job := NewApplyFeedbackJob(fb)
	ctx := context.Background()

	event, err := fb.Submit(ctx, &models.FeedbackRequest{
		SubjectID: "est-1",
		Category:  "coins",
		IsCorrect: boolPtr(true),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// payloads arrive as generic maps after queue deserialization
	payload := map[string]interface{}{"event_id": event.ID}
	if err := job.Handle(ctx, payload); err != nil {
		t.Fatalf("handle: %v", err)
	}
	stored, err := fx.store.GetEvent(ctx, event.ID)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if !stored.Applied {
		t.Fatalf("event not applied")
	}

	// a redelivered job must be terminal, not a retry loop
	if err := job.Handle(ctx, payload); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if err := job.Handle(ctx, map[string]interface{}{"event_id": "gone"}); err != nil {
		t.Fatalf("unknown event must be terminal: %v", err)
	}
}

func TestAggregateItemJobHandle(t *testing.T) {
	fx := newFixture()
	agg := NewAggregator(fx.store.ObservationStore(), fx.store.EstimateStore(), fx.registry, fx.locks, nopMetrics{})
	job := NewAggregateItemJob(agg)
	ctx := context.Background()

	seedObservations(t, fx, "sovereign",
		models.PriceObservation{SourceID: "a", Price: 500},
		models.PriceObservation{SourceID: "b", Price: 510},
	)
	if err := job.Handle(ctx, AggregateItemPayload{Item: "sovereign"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if _, err := fx.store.Current(ctx, "sovereign"); err != nil {
		t.Fatalf("estimate missing after job: %v", err)
	}

	// no observations is a steady state, not a failure
	if err := job.Handle(ctx, AggregateItemPayload{Item: "unseen"}); err != nil {
		t.Fatalf("empty window must not error: %v", err)
	}
}
