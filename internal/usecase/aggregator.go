package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"CoinPulse/internal/domain/models"
	drepo "CoinPulse/internal/domain/repository"
	"CoinPulse/internal/service/keylock"
	"CoinPulse/internal/services/registry"
	"CoinPulse/internal/services/trend"
	applogger "CoinPulse/pkg/logger"
)

const (
	// confidence ceiling when only one observation is in the window; a single
	// data point cannot be cross-validated
	singleObservationCeiling = 0.6
	maxConfidence            = 0.98
)

// Aggregator combines same-item observations into one confidence-scored
// estimate, weighted by source reliability and recency. Aggregations for the
// same item are serialized through a per-item lock; different items run in
// parallel.
type Aggregator struct {
	obs      drepo.ObservationStore
	est      drepo.EstimateStore
	reg      *registry.Registry
	locks    *keylock.KeyLock
	metrics  drepo.Metrics
	l        *applogger.Logger
	lookback time.Duration
	maxObs   int
	tauDays  float64
}

type AggregatorOption func(*Aggregator)

// WithLookback sets the observation window's time bound.
func WithLookback(d time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if d > 0 {
			a.lookback = d
		}
	}
}

// WithMaxObservations caps how many recent observations enter one aggregate.
func WithMaxObservations(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.maxObs = n
		}
	}
}

// WithRecencyTau sets the recency decay constant in days.
func WithRecencyTau(days float64) AggregatorOption {
	return func(a *Aggregator) {
		if days > 0 {
			a.tauDays = days
		}
	}
}

func NewAggregator(obs drepo.ObservationStore, est drepo.EstimateStore, reg *registry.Registry, locks *keylock.KeyLock, metrics drepo.Metrics, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		obs:      obs,
		est:      est,
		reg:      reg,
		locks:    locks,
		metrics:  metrics,
		lookback: 90 * 24 * time.Hour,
		maxObs:   10,
		tauDays:  30,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetLogger injects a structured logger.
func (a *Aggregator) SetLogger(l *applogger.Logger) { a.l = l }

// AggregateItem recomputes the current estimate for one item from the active
// observation window. With zero usable observations the prior estimate is
// marked stale (never deleted) and ErrNoData is returned.
func (a *Aggregator) AggregateItem(ctx context.Context, item string) (*models.AggregatedEstimate, error) {
	if item == "" {
		return nil, fmt.Errorf("item required")
	}
	unlock := a.locks.Lock(item)
	defer unlock()

	start := time.Now()
	window, err := a.obs.Window(ctx, item, start.Add(-a.lookback), a.maxObs)
	if err != nil {
		return nil, fmt.Errorf("observation window: %w", err)
	}

	// drop observations from inactive sources; unknown sources stay at the prior
	type weighted struct {
		obs       models.PriceObservation
		srcWeight float64
		weight    float64
	}
	usable := make([]weighted, 0, len(window))
	for _, o := range window {
		sw := a.reg.Weight(ctx, o.SourceID, o.Category)
		if sw <= 0 {
			continue
		}
		ageDays := start.Sub(o.ObservedAt).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		usable = append(usable, weighted{
			obs:       o,
			srcWeight: sw,
			weight:    sw * math.Exp(-ageDays/a.tauDays),
		})
	}

	if len(usable) == 0 {
		if err := a.est.MarkStale(ctx, item); err != nil && a.l != nil {
			a.l.Warn("mark stale failed", applogger.String("item", item), applogger.Error(err))
		}
		return nil, drepo.ErrNoData
	}

	prices := make([]float64, len(usable))
	weights := make([]float64, len(usable))
	srcWeightSum := 0.0
	seenSources := map[string]bool{}
	for i, u := range usable {
		prices[i] = u.obs.Price
		weights[i] = u.weight
		srcWeightSum += u.srcWeight
		seenSources[u.obs.SourceID] = true
	}

	average := trend.WeightedMean(prices, weights)
	stdDev := trend.WeightedStdDev(prices, weights)

	// percentiles need values sorted with their weights kept in step
	order := make([]int, len(prices))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(x, y int) bool { return prices[order[x]] < prices[order[y]] })
	sortedPrices := make([]float64, len(prices))
	sortedWeights := make([]float64, len(prices))
	for i, idx := range order {
		sortedPrices[i] = prices[idx]
		sortedWeights[i] = weights[idx]
	}
	low := trend.WeightedPercentile(sortedPrices, sortedWeights, 0.10)
	high := trend.WeightedPercentile(sortedPrices, sortedWeights, 0.90)
	if low > average {
		low = average
	}
	if high < average {
		high = average
	}

	sourceCount := len(seenSources)
	meanSrcWeight := srcWeightSum / float64(len(usable))
	baseConfidence := 0.3 + 0.5*meanSrcWeight
	confidence := math.Min(maxConfidence, baseConfidence+0.05*math.Min(float64(sourceCount), 10))

	if len(usable) == 1 {
		low, high = average, average
		confidence = math.Min(confidence, singleObservationCeiling)
	}

	agg := &models.AggregatedEstimate{
		ItemID:      item,
		Low:         low,
		Average:     average,
		High:        high,
		Confidence:  confidence,
		SourceCount: sourceCount,
		ComputedAt:  start,
	}
	if err := a.est.UpsertCurrent(ctx, agg); err != nil {
		return nil, fmt.Errorf("upsert estimate: %w", err)
	}

	// grade every contributing source against the final aggregate
	for _, u := range usable {
		if err := a.reg.RecordAgreement(ctx, u.obs.SourceID, u.obs.Price, agg, stdDev); err != nil && a.l != nil {
			a.l.Warn("record agreement failed",
				applogger.String("source", u.obs.SourceID),
				applogger.Error(err),
			)
		}
	}

	a.metrics.RecordEstimate(item, average)
	a.metrics.RecordLatency("aggregate_item", time.Since(start).Seconds())
	if a.l != nil {
		a.l.Info("aggregated",
			applogger.String("item", item),
			applogger.Int("observations", len(usable)),
			applogger.Int("sources", sourceCount),
			applogger.Any("average", average),
			applogger.Any("confidence", confidence),
		)
	}
	return agg, nil
}

// CurrentEstimate reads the current estimate without recomputation.
func (a *Aggregator) CurrentEstimate(ctx context.Context, item string) (*models.AggregatedEstimate, error) {
	return a.est.Current(ctx, item)
}
