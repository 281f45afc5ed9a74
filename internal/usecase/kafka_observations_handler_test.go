package usecase

import (
	"context"
	"testing"
	"time"
)

func TestKafkaHandlerDecodesBatchAndSingle(t *testing.T) {
	fx := newFixture()
	ing := NewIngestor(fx.store.ObservationStore(), fx.registry, fx.rates, nopMetrics{})
	h := NewKafkaObservationsHandler("coinpulse.observations", ing, nopMetrics{})
	ctx := context.Background()

	batch := []byte(`[
		{"item_id":"Morgan Dollar","source_id":"ebay","price":50,"currency":"USD"},
		{"item_id":"Morgan Dollar","source_id":"heritage","price":52,"currency":"USD"}
	]`)
	if err := h.Handle(ctx, batch); err != nil {
		t.Fatalf("handle batch: %v", err)
	}
	single := []byte(`{"item_id":"Morgan Dollar","source_id":"paris","price":48,"currency":"USD"}`)
	if err := h.Handle(ctx, single); err != nil {
		t.Fatalf("handle single: %v", err)
	}

	window, err := fx.store.Window(ctx, "morgan dollar", time.Time{}, 0)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(window) != 3 {
		t.Fatalf("stored %d observations, want 3", len(window))
	}
	if h.Topic() != "coinpulse.observations" {
		t.Fatalf("topic = %q", h.Topic())
	}
}

func TestKafkaHandlerRejectsGarbage(t *testing.T) {
	fx := newFixture()
	ing := NewIngestor(fx.store.ObservationStore(), fx.registry, fx.rates, nopMetrics{})
	h := NewKafkaObservationsHandler("coinpulse.observations", ing, nopMetrics{})

	if err := h.Handle(context.Background(), []byte("not json")); err == nil {
		t.Fatalf("garbage payload must error")
	}
}
