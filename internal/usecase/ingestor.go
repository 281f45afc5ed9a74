package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"CoinPulse/internal/domain/models"
	drepo "CoinPulse/internal/domain/repository"
	domsvc "CoinPulse/internal/domain/service"
	"CoinPulse/internal/services/registry"
	applogger "CoinPulse/pkg/logger"
)

// Ingestor validates and normalizes raw observations before they enter the
// pipeline. Invalid entries are dropped and counted, never coerced; entries
// with an unresolvable currency rate are parked and retried on the next cycle
// up to a bounded attempt count.
type Ingestor struct {
	store    drepo.ObservationStore
	pub      drepo.Publisher
	reg      *registry.Registry
	rates    domsvc.RateProvider
	metrics  drepo.Metrics
	l        *applogger.Logger
	retryMax int

	mu     sync.Mutex
	parked []parkedObservation
}

type parkedObservation struct {
	raw      models.RawObservation
	attempts int
}

type IngestorOption func(*Ingestor)

// WithRetryMax bounds how many cycles a rate-less observation is retried.
func WithRetryMax(n int) IngestorOption {
	return func(i *Ingestor) {
		if n > 0 {
			i.retryMax = n
		}
	}
}

// WithPublisher forwards accepted observations to a downstream bus.
func WithPublisher(p drepo.Publisher) IngestorOption {
	return func(i *Ingestor) { i.pub = p }
}

func NewIngestor(store drepo.ObservationStore, reg *registry.Registry, rates domsvc.RateProvider, metrics drepo.Metrics, opts ...IngestorOption) *Ingestor {
	ing := &Ingestor{
		store:    store,
		reg:      reg,
		rates:    rates,
		metrics:  metrics,
		retryMax: 3,
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// SetLogger injects a structured logger.
func (i *Ingestor) SetLogger(l *applogger.Logger) { i.l = l }

// IngestBatch processes one batch. Accepted+Rejected+Queued always equals the
// batch size; previously parked observations are retried first and accounted
// separately.
func (i *Ingestor) IngestBatch(ctx context.Context, batch []models.RawObservation) (*models.IngestResult, error) {
	i.retryParked(ctx)

	res := &models.IngestResult{}
	accepted := make([]*models.PriceObservation, 0, len(batch))

	for _, raw := range batch {
		o, verdict := i.normalize(ctx, raw)
		switch verdict {
		case verdictAccept:
			accepted = append(accepted, o)
		case verdictQueue:
			i.park(raw)
			res.Queued++
		default:
			res.Rejected++
			i.metrics.RecordError("ingest_validate")
		}
	}

	if len(accepted) > 0 {
		// storage unavailability is the one hard failure: callers must be able
		// to retry rather than silently lose data
		if err := i.store.AppendBatch(ctx, accepted); err != nil {
			return nil, fmt.Errorf("append observations: %w", err)
		}
		for _, o := range accepted {
			if err := i.reg.Observe(ctx, o.SourceID, o.ObservedAt); err != nil && i.l != nil {
				i.l.Warn("registry observe failed", applogger.String("source", o.SourceID), applogger.Error(err))
			}
			i.metrics.RecordObservation("store", o.SourceID)
		}
		if i.pub != nil {
			if err := i.pub.PublishBatch(ctx, accepted); err != nil {
				// downstream bus is best-effort; the store is authoritative
				i.metrics.RecordError("ingest_publish")
				if i.l != nil {
					i.l.Warn("publish batch failed", applogger.Error(err))
				}
			}
		}
	}
	res.Accepted = len(accepted)

	if i.l != nil {
		i.l.Info("ingest batch done",
			applogger.Int("accepted", res.Accepted),
			applogger.Int("rejected", res.Rejected),
			applogger.Int("queued", res.Queued),
		)
	}
	return res, nil
}

type verdict int

const (
	verdictReject verdict = iota
	verdictAccept
	verdictQueue
)

func (i *Ingestor) normalize(ctx context.Context, raw models.RawObservation) (*models.PriceObservation, verdict) {
	item := NormalizeItemID(raw.ItemID)
	if item == "" || raw.SourceID == "" {
		return nil, verdictReject
	}
	if raw.Price <= 0 {
		return nil, verdictReject
	}
	currency := strings.ToUpper(strings.TrimSpace(raw.Currency))
	if currency == "" {
		currency = i.rates.Base()
	}
	rate, ok, err := i.rates.Rate(ctx, currency)
	if err != nil || !ok {
		// rate temporarily unavailable; park, do not discard
		return nil, verdictQueue
	}
	observedAt := raw.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now()
	}
	return &models.PriceObservation{
		ItemID:     item,
		SourceID:   raw.SourceID,
		Price:      raw.Price * rate,
		Currency:   i.rates.Base(),
		Category:   strings.ToLower(strings.TrimSpace(raw.Category)),
		ObservedAt: observedAt,
		RawPayload: raw.RawPayload,
	}, verdictAccept
}

func (i *Ingestor) park(raw models.RawObservation) {
	i.mu.Lock()
	i.parked = append(i.parked, parkedObservation{raw: raw})
	i.mu.Unlock()
}

// retryParked re-runs parked observations through normalization. Entries that
// exhaust the retry budget are dropped and logged.
func (i *Ingestor) retryParked(ctx context.Context) {
	i.mu.Lock()
	pending := i.parked
	i.parked = nil
	i.mu.Unlock()
	if len(pending) == 0 {
		return
	}

	accepted := make([]*models.PriceObservation, 0, len(pending))
	for _, p := range pending {
		o, v := i.normalize(ctx, p.raw)
		if v == verdictAccept {
			accepted = append(accepted, o)
			continue
		}
		p.attempts++
		if p.attempts >= i.retryMax {
			i.metrics.RecordError("ingest_retry_exhausted")
			if i.l != nil {
				i.l.Warn("parked observation dropped after retries",
					applogger.String("item", p.raw.ItemID),
					applogger.String("currency", p.raw.Currency),
					applogger.Int("attempts", p.attempts),
				)
			}
			continue
		}
		i.mu.Lock()
		i.parked = append(i.parked, p)
		i.mu.Unlock()
	}

	if len(accepted) > 0 {
		if err := i.store.AppendBatch(ctx, accepted); err != nil {
			if i.l != nil {
				i.l.Error("retry append failed", applogger.Error(err))
			}
			return
		}
		for _, o := range accepted {
			_ = i.reg.Observe(ctx, o.SourceID, o.ObservedAt)
			i.metrics.RecordObservation("store", o.SourceID)
		}
	}
}

// QueuedCount reports how many observations are parked awaiting a rate.
func (i *Ingestor) QueuedCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.parked)
}

// NormalizeItemID canonicalizes an item key: lower-case, trimmed, whitespace
// collapsed, punctuation stripped. The '|' attribute separator is preserved so
// "1921 Morgan Dollar|MS63" keeps its grade component.
func NormalizeItemID(s string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range strings.TrimSpace(strings.ToLower(s)) {
		switch {
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '|':
			b.WriteRune(r)
			lastSpace = false
		default:
			// punctuation dropped
		}
	}
	return strings.Trim(b.String(), " |")
}
