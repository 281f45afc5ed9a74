package usecase

import (
	"context"
	"fmt"
	"time"

	"CoinPulse/internal/domain/models"
	domrepo "CoinPulse/internal/domain/repository"
)

// HistoryUseCase provides business logic for reading estimate history.
type HistoryUseCase struct {
	store domrepo.EstimateStore
}

func NewHistoryUseCase(store domrepo.EstimateStore) *HistoryUseCase {
	return &HistoryUseCase{store: store}
}

type GetHistoryParams struct {
	Item  string
	From  time.Time
	To    time.Time
	Limit int
}

type GetHistoryResult struct {
	Item      string
	From      time.Time
	To        time.Time
	Count     int
	Estimates []models.AggregatedEstimate
}

func (uc *HistoryUseCase) GetHistory(ctx context.Context, p GetHistoryParams) (*GetHistoryResult, error) {
	if p.Item == "" {
		return nil, fmt.Errorf("item required")
	}
	if p.To.IsZero() {
		p.To = time.Now()
	}
	if p.From.IsZero() {
		p.From = p.To.Add(-90 * 24 * time.Hour)
	}
	if p.From.After(p.To) {
		return nil, fmt.Errorf("from must be <= to")
	}
	if p.Limit <= 0 {
		p.Limit = 1000
	}
	if p.Limit > 10000 {
		p.Limit = 10000
	}

	estimates, err := uc.store.History(ctx, p.Item, p.From, p.To)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	if len(estimates) > p.Limit {
		estimates = estimates[:p.Limit]
	}

	return &GetHistoryResult{
		Item:      p.Item,
		From:      p.From,
		To:        p.To,
		Count:     len(estimates),
		Estimates: estimates,
	}, nil
}
