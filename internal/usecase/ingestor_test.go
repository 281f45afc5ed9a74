package usecase

import (
	"context"
	"math"
	"testing"
	"time"

	"CoinPulse/internal/domain/models"
)

func TestIngestBatchConservation(t *testing.T) {
	fx := newFixture()
	ing := NewIngestor(fx.store.ObservationStore(), fx.registry, fx.rates, nopMetrics{})
	ctx := context.Background()

	batch := []models.RawObservation{
		{ItemID: "1921 Morgan Dollar", SourceID: "ebay", Price: 50, Currency: "USD"},
		{ItemID: "1921 Morgan Dollar", SourceID: "heritage", Price: 40, Currency: "EUR"},
		{ItemID: "1921 Morgan Dollar", SourceID: "", Price: 55},       // no source
		{ItemID: "1921 Morgan Dollar", SourceID: "paris", Price: -1},  // bad price
		{ItemID: "1921 Morgan Dollar", SourceID: "tokyo", Price: 60, Currency: "XAU"}, // no rate
	}
	res, err := ing.IngestBatch(ctx, batch)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Accepted != 2 || res.Rejected != 2 || res.Queued != 1 {
		t.Fatalf("result %+v", res)
	}
	if got := res.Accepted + res.Rejected + res.Queued; got != len(batch) {
		t.Fatalf("accounting mismatch: %d != %d", got, len(batch))
	}
	if ing.QueuedCount() != 1 {
		t.Fatalf("queued count = %d, want 1", ing.QueuedCount())
	}

	window, err := fx.store.Window(ctx, "1921 morgan dollar", time.Time{}, 0)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(window) != 2 {
		t.Fatalf("stored %d observations, want 2", len(window))
	}
	for _, o := range window {
		if o.Currency != "USD" {
			t.Fatalf("stored currency %q, want base", o.Currency)
		}
		if o.ObservedAt.IsZero() {
			t.Fatalf("observed_at must default to now")
		}
		if o.SourceID == "heritage" && math.Abs(o.Price-44) > 1e-9 {
			t.Fatalf("EUR price not converted: %v", o.Price)
		}
	}
}

func TestIngestParkedRetriedWhenRateAppears(t *testing.T) {
	fx := newFixture()
	ing := NewIngestor(fx.store.ObservationStore(), fx.registry, fx.rates, nopMetrics{})
	ctx := context.Background()

	_, err := ing.IngestBatch(ctx, []models.RawObservation{
		{ItemID: "guinea", SourceID: "s1", Price: 2, Currency: "XAU"},
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if ing.QueuedCount() != 1 {
		t.Fatalf("queued = %d, want 1", ing.QueuedCount())
	}

	fx.rates.Set("XAU", 2400)
	if _, err := ing.IngestBatch(ctx, nil); err != nil {
		t.Fatalf("retry cycle: %v", err)
	}
	if ing.QueuedCount() != 0 {
		t.Fatalf("queued = %d after rate appeared, want 0", ing.QueuedCount())
	}
	window, _ := fx.store.Window(ctx, "guinea", time.Time{}, 0)
	if len(window) != 1 {
		t.Fatalf("stored %d, want 1", len(window))
	}
	if math.Abs(window[0].Price-4800) > 1e-9 {
		t.Fatalf("converted price = %v, want 4800", window[0].Price)
	}
}

func TestIngestParkedDroppedAfterRetryBudget(t *testing.T) {
	fx := newFixture()
	ing := NewIngestor(fx.store.ObservationStore(), fx.registry, fx.rates, nopMetrics{}, WithRetryMax(3))
	ctx := context.Background()

	_, _ = ing.IngestBatch(ctx, []models.RawObservation{
		{ItemID: "guinea", SourceID: "s1", Price: 2, Currency: "XAU"},
	})
	for i := 0; i < 3; i++ {
		if _, err := ing.IngestBatch(ctx, nil); err != nil {
			t.Fatalf("retry cycle %d: %v", i, err)
		}
	}
	if ing.QueuedCount() != 0 {
		t.Fatalf("queued = %d after budget exhausted, want 0", ing.QueuedCount())
	}
	window, _ := fx.store.Window(ctx, "guinea", time.Time{}, 0)
	if len(window) != 0 {
		t.Fatalf("dropped observation must not be stored")
	}
}

func TestIngestTouchesRegistry(t *testing.T) {
	fx := newFixture()
	ing := NewIngestor(fx.store.ObservationStore(), fx.registry, fx.rates, nopMetrics{})
	ctx := context.Background()

	_, err := ing.IngestBatch(ctx, []models.RawObservation{
		{ItemID: "sovereign", SourceID: "ebay", Price: 500},
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	rec, err := fx.store.Get(ctx, "ebay")
	if err != nil || rec == nil {
		t.Fatalf("source not auto-created: %v, %v", rec, err)
	}
	if rec.Observations != 1 || rec.Reliability != models.DefaultReliability {
		t.Fatalf("unexpected source record %+v", rec)
	}
}

func TestNormalizeItemID(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"  1921  Morgan   Dollar|MS63 ", "1921 morgan dollar|ms63"},
		{"St. Gaudens Double Eagle!", "st gaudens double eagle"},
		{"SOVEREIGN", "sovereign"},
		{"abc|", "abc"},
		{"   ", ""},
	}
	for _, c := range cases {
		if got := NormalizeItemID(c.in); got != c.want {
			t.Fatalf("NormalizeItemID(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestIngestCarriesCategory(t *testing.T) {
	fx := newFixture()
	ing := NewIngestor(fx.store.ObservationStore(), fx.registry, fx.rates, nopMetrics{})
	ctx := context.Background()

	_, err := ing.IngestBatch(ctx, []models.RawObservation{
		{ItemID: "Morgan Dollar", SourceID: "ebay", Price: 100, Category: " Coins "},
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	window, err := fx.store.Window(ctx, "morgan dollar", time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(window) != 1 {
		t.Fatalf("stored %d observations, want 1", len(window))
	}
	if window[0].Category != "coins" {
		t.Fatalf("category = %q, want normalized %q", window[0].Category, "coins")
	}
}
