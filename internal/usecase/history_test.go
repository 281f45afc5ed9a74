package usecase

import (
	"context"
	"testing"
	"time"
)

func TestGetHistoryDefaultsAndBounds(t *testing.T) {
	fx := newFixture()
	uc := NewHistoryUseCase(fx.store.EstimateStore())
	ctx := context.Background()

	seedHistory(t, fx, "sovereign", 100, 102, 104)

	res, err := uc.GetHistory(ctx, GetHistoryParams{Item: "sovereign"})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if res.Count != 3 || len(res.Estimates) != 3 {
		t.Fatalf("count = %d, want 3", res.Count)
	}
	for i := 1; i < len(res.Estimates); i++ {
		if res.Estimates[i].ComputedAt.Before(res.Estimates[i-1].ComputedAt) {
			t.Fatalf("history not chronological")
		}
	}

	if _, err := uc.GetHistory(ctx, GetHistoryParams{}); err == nil {
		t.Fatalf("missing item must fail")
	}
	now := time.Now()
	if _, err := uc.GetHistory(ctx, GetHistoryParams{Item: "sovereign", From: now, To: now.Add(-time.Hour)}); err == nil {
		t.Fatalf("inverted range must fail")
	}
}

func TestGetHistoryLimit(t *testing.T) {
	fx := newFixture()
	uc := NewHistoryUseCase(fx.store.EstimateStore())
	ctx := context.Background()

	seedHistory(t, fx, "morgan", 100, 101, 102, 103, 104)
	res, err := uc.GetHistory(ctx, GetHistoryParams{Item: "morgan", Limit: 2})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if res.Count != 2 {
		t.Fatalf("count = %d, want 2", res.Count)
	}
}
