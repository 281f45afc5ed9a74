package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"CoinPulse/internal/domain/models"
	drepo "CoinPulse/internal/domain/repository"
	"CoinPulse/internal/service/keylock"
	"CoinPulse/internal/services/registry"
	applogger "CoinPulse/pkg/logger"
)

const (
	// baselineAccuracy is the neutral score a category starts from; the
	// improvement metric measures drift away from it.
	baselineAccuracy = 0.5

	defaultSweepBatch = 50
)

var (
	ErrFeedbackShape   = errors.New("feedback needs is_correct or accuracy_rating")
	ErrEventNotFound   = errors.New("learning event not found")
	ErrAlreadyApplied  = errors.New("learning event already applied")
	ErrUnknownCategory = errors.New("unknown category")
)

// correctionHint is the slice of the correction payload the engine acts on.
// Anything else in the payload is stored verbatim for audit but not interpreted.
type correctionHint struct {
	SourceID string `json:"source_id"`
}

// FeedbackEngine records human feedback as immutable learning events and
// applies each exactly once: the applied flag is flipped first, and only the
// winner of that flip runs the side effects. Metric rollups are derived and
// rebuildable from event history.
type FeedbackEngine struct {
	events  drepo.LearningStore
	metrics drepo.MetricStore
	reg     *registry.Registry
	locks   *keylock.KeyLock
	rec     drepo.Metrics
	l       *applogger.Logger
	batch   int
}

type FeedbackOption func(*FeedbackEngine)

// WithSweepBatch caps how many pending events one sweep pass applies.
func WithSweepBatch(n int) FeedbackOption {
	return func(f *FeedbackEngine) {
		if n > 0 {
			f.batch = n
		}
	}
}

func NewFeedbackEngine(events drepo.LearningStore, metrics drepo.MetricStore, reg *registry.Registry, rec drepo.Metrics, opts ...FeedbackOption) *FeedbackEngine {
	f := &FeedbackEngine{
		events:  events,
		metrics: metrics,
		reg:     reg,
		locks:   keylock.New(),
		rec:     rec,
		batch:   defaultSweepBatch,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SetLogger injects a structured logger.
func (f *FeedbackEngine) SetLogger(l *applogger.Logger) { f.l = l }

// Submit validates and persists a feedback event in the pending state.
// The event is durable before any learning happens, so a crash between
// submission and application loses nothing.
func (f *FeedbackEngine) Submit(ctx context.Context, req *models.FeedbackRequest) (*models.LearningEvent, error) {
	if req.IsCorrect == nil && req.Rating == nil {
		return nil, ErrFeedbackShape
	}
	if req.Rating != nil && (*req.Rating < 1 || *req.Rating > 5) {
		return nil, fmt.Errorf("accuracy_rating out of range: %d", *req.Rating)
	}

	event := &models.LearningEvent{
		ID:         uuid.NewString(),
		SubjectID:  req.SubjectID,
		Category:   req.Category,
		IsCorrect:  req.IsCorrect,
		Rating:     req.Rating,
		Correction: req.Correction,
		CreatedAt:  time.Now(),
	}
	if err := f.events.Insert(ctx, event); err != nil {
		return nil, fmt.Errorf("store learning event: %w", err)
	}
	if f.l != nil {
		f.l.Info("feedback submitted",
			applogger.String("event", event.ID),
			applogger.String("category", event.Category),
		)
	}
	return event, nil
}

// Apply runs the learning side effects for one event. The applied flag is the
// gate: if another worker (or a retry) already flipped it, Apply returns
// ErrAlreadyApplied without touching scores or metrics.
//
// The flag flips before the side effects run, so application is at-most-once:
// a crash between the flip and the metric fold loses that event's effect
// instead of double-counting it on redelivery. Rebuild repairs the metrics
// from the event log.
func (f *FeedbackEngine) Apply(ctx context.Context, eventID string) error {
	unlock := f.locks.Lock(eventID)
	defer unlock()

	event, err := f.events.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, drepo.ErrNoData) {
			return ErrEventNotFound
		}
		return fmt.Errorf("load learning event: %w", err)
	}

	first, err := f.events.MarkApplied(ctx, eventID)
	if err != nil {
		return fmt.Errorf("mark applied: %w", err)
	}
	if !first {
		return ErrAlreadyApplied
	}

	score := event.Score()
	if src := f.correctionSource(event); src != "" {
		if err := f.reg.RecordFeedback(ctx, src, score); err != nil && f.l != nil {
			f.l.Warn("feedback reliability update failed",
				applogger.String("event", eventID),
				applogger.String("source", src),
				applogger.Error(err),
			)
		}
	}
	if err := f.foldIntoMetric(ctx, event, score); err != nil {
		return err
	}
	if f.l != nil {
		f.l.Info("feedback applied",
			applogger.String("event", eventID),
			applogger.String("category", event.Category),
			applogger.Any("score", score),
		)
	}
	return nil
}

// Sweep applies a batch of pending events, oldest first. Errors on individual
// events are logged and skipped so one poison event cannot stall the queue.
func (f *FeedbackEngine) Sweep(ctx context.Context) (int, error) {
	pending, err := f.events.Pending(ctx, f.batch)
	if err != nil {
		return 0, fmt.Errorf("pending events: %w", err)
	}
	applied := 0
	for _, e := range pending {
		if err := f.Apply(ctx, e.ID); err != nil {
			if errors.Is(err, ErrAlreadyApplied) {
				continue
			}
			if f.l != nil {
				f.l.Warn("sweep apply failed",
					applogger.String("event", e.ID),
					applogger.Error(err),
				)
			}
			continue
		}
		applied++
	}
	return applied, nil
}

// Performance returns the rollup for one category.
func (f *FeedbackEngine) Performance(ctx context.Context, category string) (*models.PerformanceMetric, error) {
	m, err := f.metrics.Get(ctx, category)
	if err != nil {
		if errors.Is(err, drepo.ErrNoData) {
			return nil, ErrUnknownCategory
		}
		return nil, err
	}
	return m, nil
}

// PerformanceAll lists every category rollup.
func (f *FeedbackEngine) PerformanceAll(ctx context.Context) ([]models.PerformanceMetric, error) {
	return f.metrics.List(ctx)
}

// Rebuild recomputes one category's rollup from scratch out of its event
// history. The rollup is fully derived, so this is always safe.
func (f *FeedbackEngine) Rebuild(ctx context.Context, category string) (*models.PerformanceMetric, error) {
	events, err := f.events.ByCategory(ctx, category, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("events by category: %w", err)
	}
	m := &models.PerformanceMetric{Category: category, LastUpdatedAt: time.Now()}
	var sum float64
	for _, e := range events {
		if !e.Applied {
			continue
		}
		sum += e.Score()
		m.TotalEvents++
		if len(e.Correction) > 0 {
			m.Corrections++
		}
	}
	if m.TotalEvents > 0 {
		m.AccuracyImpr = sum/float64(m.TotalEvents) - baselineAccuracy
	}
	if err := f.metrics.Upsert(ctx, m); err != nil {
		return nil, fmt.Errorf("upsert metric: %w", err)
	}
	return m, nil
}

func (f *FeedbackEngine) correctionSource(event *models.LearningEvent) string {
	if len(event.Correction) == 0 {
		return ""
	}
	var hint correctionHint
	if err := json.Unmarshal(event.Correction, &hint); err != nil {
		if f.l != nil {
			f.l.Debug("unparseable correction payload",
				applogger.String("event", event.ID),
				applogger.Error(err),
			)
		}
		return ""
	}
	return hint.SourceID
}

// foldIntoMetric updates the category rollup incrementally with one event.
// The incremental mean matches what Rebuild produces over the same events.
func (f *FeedbackEngine) foldIntoMetric(ctx context.Context, event *models.LearningEvent, score float64) error {
	unlock := f.locks.Lock("metric:" + event.Category)
	defer unlock()

	m, err := f.metrics.Get(ctx, event.Category)
	if err != nil {
		if !errors.Is(err, drepo.ErrNoData) {
			return fmt.Errorf("load metric: %w", err)
		}
		m = &models.PerformanceMetric{Category: event.Category}
	}
	prevMean := baselineAccuracy + m.AccuracyImpr
	n := float64(m.TotalEvents)
	newMean := (prevMean*n + score) / (n + 1)
	m.AccuracyImpr = newMean - baselineAccuracy
	m.TotalEvents++
	if len(event.Correction) > 0 {
		m.Corrections++
	}
	m.LastUpdatedAt = time.Now()
	if err := f.metrics.Upsert(ctx, m); err != nil {
		return fmt.Errorf("upsert metric: %w", err)
	}
	return nil
}
