package usecase

import (
	"context"
	"errors"
	"fmt"

	drepo "CoinPulse/internal/domain/repository"
	"CoinPulse/pkg/queue"
)

// Queue job types.
const (
	JobApplyFeedback = "apply_feedback"
	JobAggregateItem = "aggregate_item"
)

// ApplyFeedbackPayload carries the event to apply.
type ApplyFeedbackPayload struct {
	EventID string `json:"event_id"`
}

// ApplyFeedbackJob applies a submitted learning event off the request path.
type ApplyFeedbackJob struct {
	engine *FeedbackEngine
}

func NewApplyFeedbackJob(engine *FeedbackEngine) *ApplyFeedbackJob {
	return &ApplyFeedbackJob{engine: engine}
}

func (j *ApplyFeedbackJob) Name() string { return "apply-feedback" }
func (j *ApplyFeedbackJob) Type() string { return JobApplyFeedback }

func (j *ApplyFeedbackJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[ApplyFeedbackPayload](payload)
	if err != nil {
		return fmt.Errorf("apply feedback payload: %w", err)
	}
	if err := j.engine.Apply(ctx, p.EventID); err != nil {
		// already-applied events are terminal; retrying cannot change the outcome
		if errors.Is(err, ErrAlreadyApplied) || errors.Is(err, ErrEventNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// AggregateItemPayload names the item to recompute.
type AggregateItemPayload struct {
	Item string `json:"item"`
}

// AggregateItemJob recomputes one item's estimate in the background.
type AggregateItemJob struct {
	agg *Aggregator
}

func NewAggregateItemJob(agg *Aggregator) *AggregateItemJob {
	return &AggregateItemJob{agg: agg}
}

func (j *AggregateItemJob) Name() string { return "aggregate-item" }
func (j *AggregateItemJob) Type() string { return JobAggregateItem }

func (j *AggregateItemJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[AggregateItemPayload](payload)
	if err != nil {
		return fmt.Errorf("aggregate item payload: %w", err)
	}
	if _, err := j.agg.AggregateItem(ctx, p.Item); err != nil {
		// an empty window is a steady state, not a retryable failure
		if errors.Is(err, drepo.ErrNoData) {
			return nil
		}
		return err
	}
	return nil
}

var (
	_ queue.Job = (*ApplyFeedbackJob)(nil)
	_ queue.Job = (*AggregateItemJob)(nil)
)
