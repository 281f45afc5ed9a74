package registry

import (
	"context"
	"fmt"
	"math"
	"time"

	"CoinPulse/internal/domain/models"
	domrepo "CoinPulse/internal/domain/repository"
	"CoinPulse/internal/service/keylock"
	applogger "CoinPulse/pkg/logger"
)

// Registry tracks per-source reliability. It is the single writer of
// reliability scores; same-source updates are serialized via a keyed lock.
type Registry struct {
	store    domrepo.SourceStore
	locks    *keylock.KeyLock
	alpha    float64
	prior    float64
	specBump float64
	l        *applogger.Logger
}

type Option func(*Registry)

// WithAlpha sets the EMA smoothing factor for agreement updates.
func WithAlpha(a float64) Option {
	return func(r *Registry) {
		if a > 0 && a < 1 {
			r.alpha = a
		}
	}
}

// WithPrior sets the reliability prior for unknown sources.
func WithPrior(p float64) Option {
	return func(r *Registry) {
		if p > 0 && p < 1 {
			r.prior = p
		}
	}
}

func New(store domrepo.SourceStore, opts ...Option) *Registry {
	r := &Registry{
		store:    store,
		locks:    keylock.New(),
		alpha:    0.1,
		prior:    models.DefaultReliability,
		specBump: 0.05,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetLogger injects a structured logger.
func (r *Registry) SetLogger(l *applogger.Logger) { r.l = l }

// Weight returns the reliability of an active source. Unknown sources get the
// prior; they are auto-created on first sight rather than rejected, so the
// registry never blocks ingestion. Inactive sources weigh zero.
func (r *Registry) Weight(ctx context.Context, sourceID, category string) float64 {
	rec, err := r.store.Get(ctx, sourceID)
	if err != nil || rec == nil {
		if err != nil && r.l != nil {
			r.l.Warn("registry weight lookup failed, using prior",
				applogger.String("source", sourceID),
				applogger.Error(err),
			)
		}
		return r.prior
	}
	if !rec.Active {
		return 0
	}
	w := rec.Reliability
	if category != "" && rec.SpecializesIn(category) {
		w = math.Min(1, w+r.specBump)
	}
	return w
}

// Observe registers that a source produced an observation, auto-creating the
// record at the prior weight on first contact.
func (r *Registry) Observe(ctx context.Context, sourceID string, seenAt time.Time) error {
	unlock := r.locks.Lock(sourceID)
	defer unlock()

	rec, err := r.store.Get(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("registry get %s: %w", sourceID, err)
	}
	if rec == nil {
		rec = &models.SourceRecord{
			SourceID:    sourceID,
			DisplayName: sourceID,
			Reliability: r.prior,
			Active:      true,
		}
	}
	rec.Observations++
	if seenAt.After(rec.LastSeenAt) {
		rec.LastSeenAt = seenAt
	}
	return r.store.Upsert(ctx, rec)
}

// RecordAgreement nudges reliability toward 1 when the source's observation
// landed within one weighted standard deviation of the final aggregate, and
// toward 0 otherwise: new = old*(1-alpha) + signal*alpha. The EMA keeps any
// single observation from dominating the score.
func (r *Registry) RecordAgreement(ctx context.Context, sourceID string, obsPrice float64, agg *models.AggregatedEstimate, stdDev float64) error {
	unlock := r.locks.Lock(sourceID)
	defer unlock()

	rec, err := r.store.Get(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("registry get %s: %w", sourceID, err)
	}
	if rec == nil {
		rec = &models.SourceRecord{
			SourceID:    sourceID,
			DisplayName: sourceID,
			Reliability: r.prior,
			Active:      true,
		}
	}

	signal := 0.0
	tolerance := stdDev
	if tolerance <= 0 {
		// degenerate spread; fall back to a small band around the average
		tolerance = math.Abs(agg.Average) * 0.05
	}
	if math.Abs(obsPrice-agg.Average) <= tolerance {
		signal = 1
	}
	old := rec.Reliability
	rec.Reliability = old*(1-r.alpha) + signal*r.alpha

	if err := r.store.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("registry upsert %s: %w", sourceID, err)
	}
	if r.l != nil {
		r.l.Debug("registry agreement recorded",
			applogger.String("source", sourceID),
			applogger.Any("old", old),
			applogger.Any("new", rec.Reliability),
		)
	}
	return nil
}

// RecordFeedback folds a human feedback score in [0,1] into the source's
// reliability with the same EMA as agreement updates. Unknown sources are a
// silent no-op: feedback about a source the registry never saw carries no
// observation to re-weight.
func (r *Registry) RecordFeedback(ctx context.Context, sourceID string, score float64) error {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	unlock := r.locks.Lock(sourceID)
	defer unlock()

	rec, err := r.store.Get(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("registry get %s: %w", sourceID, err)
	}
	if rec == nil {
		return nil
	}
	old := rec.Reliability
	rec.Reliability = old*(1-r.alpha) + score*r.alpha
	if err := r.store.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("registry upsert %s: %w", sourceID, err)
	}
	if r.l != nil {
		r.l.Debug("registry feedback recorded",
			applogger.String("source", sourceID),
			applogger.Any("old", old),
			applogger.Any("new", rec.Reliability),
		)
	}
	return nil
}

// DeactivateStale marks sources unseen for longer than maxAge inactive.
// Records are kept for audit; aggregation simply stops counting them.
func (r *Registry) DeactivateStale(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	n, err := r.store.DeactivateStale(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deactivate stale: %w", err)
	}
	if n > 0 && r.l != nil {
		r.l.Info("stale sources deactivated",
			applogger.Int("count", n),
			applogger.String("cutoff", cutoff.Format(time.RFC3339)),
		)
	}
	return n, nil
}

// List exposes the registry contents for the audit endpoint.
func (r *Registry) List(ctx context.Context, activeOnly bool) ([]models.SourceRecord, error) {
	return r.store.List(ctx, activeOnly)
}
