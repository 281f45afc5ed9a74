package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"CoinPulse/internal/domain/models"
	domrepo "CoinPulse/internal/domain/repository"
)

// MemoryStore implements every engine store in process memory. It backs the
// "memory" backend for local development and the package tests; semantics
// mirror the ClickHouse implementation, including append-only observation and
// forecast logs.
type MemoryStore struct {
	mu           sync.RWMutex
	observations map[string][]models.PriceObservation
	current      map[string]models.AggregatedEstimate
	history      map[string][]models.AggregatedEstimate
	forecasts    map[string][]models.TrendForecast
	sources      map[string]models.SourceRecord
	events       map[string]models.LearningEvent
	eventOrder   []string
	metrics      map[string]models.PerformanceMetric
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		observations: make(map[string][]models.PriceObservation),
		current:      make(map[string]models.AggregatedEstimate),
		history:      make(map[string][]models.AggregatedEstimate),
		forecasts:    make(map[string][]models.TrendForecast),
		sources:      make(map[string]models.SourceRecord),
		events:       make(map[string]models.LearningEvent),
		metrics:      make(map[string]models.PerformanceMetric),
	}
}

// --- ObservationStore ---

func (s *MemoryStore) Append(ctx context.Context, o *models.PriceObservation) error {
	s.mu.Lock()
	s.observations[o.ItemID] = append(s.observations[o.ItemID], *o)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) AppendBatch(ctx context.Context, obs []*models.PriceObservation) error {
	s.mu.Lock()
	for _, o := range obs {
		s.observations[o.ItemID] = append(s.observations[o.ItemID], *o)
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Window(ctx context.Context, item string, since time.Time, limit int) ([]models.PriceObservation, error) {
	s.mu.RLock()
	all := s.observations[item]
	out := make([]models.PriceObservation, 0, len(all))
	for _, o := range all {
		if !o.ObservedAt.Before(since) {
			out = append(out, o)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ObservedAt.Before(out[j].ObservedAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *MemoryStore) Health(ctx context.Context) error { return nil }

// --- EstimateStore ---

func (s *MemoryStore) UpsertCurrent(ctx context.Context, e *models.AggregatedEstimate) error {
	s.mu.Lock()
	s.current[e.ItemID] = *e
	s.history[e.ItemID] = append(s.history[e.ItemID], *e)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Current(ctx context.Context, item string) (*models.AggregatedEstimate, error) {
	s.mu.RLock()
	e, ok := s.current[item]
	s.mu.RUnlock()
	if !ok {
		return nil, domrepo.ErrNoData
	}
	return &e, nil
}

func (s *MemoryStore) History(ctx context.Context, item string, from, to time.Time) ([]models.AggregatedEstimate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AggregatedEstimate
	for _, e := range s.history[item] {
		if !e.ComputedAt.Before(from) && !e.ComputedAt.After(to) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ComputedAt.Before(out[j].ComputedAt) })
	return out, nil
}

func (s *MemoryStore) MarkStale(ctx context.Context, item string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.current[item]
	if !ok {
		return nil
	}
	e.Stale = true
	s.current[item] = e
	return nil
}

// --- ForecastStore ---

func (s *MemoryStore) AppendForecast(ctx context.Context, f *models.TrendForecast) error {
	s.mu.Lock()
	s.forecasts[f.ItemID] = append(s.forecasts[f.ItemID], *f)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) LatestForecast(ctx context.Context, item string, horizon domrepo.Horizon) (*models.TrendForecast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.TrendForecast
	for i := range s.forecasts[item] {
		f := s.forecasts[item][i]
		if f.Horizon != string(horizon) {
			continue
		}
		if latest == nil || f.GeneratedAt.After(latest.GeneratedAt) {
			cp := f
			latest = &cp
		}
	}
	if latest == nil {
		return nil, domrepo.ErrNoData
	}
	return latest, nil
}

// --- SourceStore ---

func (s *MemoryStore) Get(ctx context.Context, sourceID string) (*models.SourceRecord, error) {
	s.mu.RLock()
	rec, ok := s.sources[sourceID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, rec *models.SourceRecord) error {
	s.mu.Lock()
	s.sources[rec.SourceID] = *rec
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(ctx context.Context, activeOnly bool) ([]models.SourceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SourceRecord, 0, len(s.sources))
	for _, rec := range s.sources {
		if activeOnly && !rec.Active {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out, nil
}

func (s *MemoryStore) Touch(ctx context.Context, sourceID string, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sources[sourceID]
	if !ok {
		rec = models.SourceRecord{
			SourceID:    sourceID,
			DisplayName: sourceID,
			Reliability: models.DefaultReliability,
			Active:      true,
		}
	}
	rec.Observations++
	if seenAt.After(rec.LastSeenAt) {
		rec.LastSeenAt = seenAt
	}
	s.sources[sourceID] = rec
	return nil
}

func (s *MemoryStore) DeactivateStale(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, rec := range s.sources {
		if rec.Active && rec.LastSeenAt.Before(olderThan) {
			rec.Active = false
			s.sources[id] = rec
			n++
		}
	}
	return n, nil
}

// --- LearningStore ---

func (s *MemoryStore) Insert(ctx context.Context, e *models.LearningEvent) error {
	s.mu.Lock()
	s.events[e.ID] = *e
	s.eventOrder = append(s.eventOrder, e.ID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetEvent(ctx context.Context, id string) (*models.LearningEvent, error) {
	s.mu.RLock()
	e, ok := s.events[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domrepo.ErrNoData
	}
	return &e, nil
}

func (s *MemoryStore) Pending(ctx context.Context, limit int) ([]models.LearningEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.LearningEvent, 0, limit)
	for _, id := range s.eventOrder {
		e := s.events[id]
		if e.Applied {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkApplied(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return false, domrepo.ErrNoData
	}
	if e.Applied {
		return false, nil
	}
	e.Applied = true
	s.events[id] = e
	return true, nil
}

func (s *MemoryStore) ByCategory(ctx context.Context, category string, since time.Time) ([]models.LearningEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.LearningEvent
	for _, id := range s.eventOrder {
		e := s.events[id]
		if e.Category == category && !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- MetricStore ---

func (s *MemoryStore) GetMetric(ctx context.Context, category string) (*models.PerformanceMetric, error) {
	s.mu.RLock()
	m, ok := s.metrics[category]
	s.mu.RUnlock()
	if !ok {
		return nil, domrepo.ErrNoData
	}
	return &m, nil
}

func (s *MemoryStore) UpsertMetric(ctx context.Context, m *models.PerformanceMetric) error {
	s.mu.Lock()
	s.metrics[m.Category] = *m
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListMetrics(ctx context.Context) ([]models.PerformanceMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.PerformanceMetric, 0, len(s.metrics))
	for _, m := range s.metrics {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

// Interface views. MemoryStore backs all stores with one guarded state; the
// wrappers exist because a few method names collide across store interfaces.

type memForecasts struct{ *MemoryStore }

func (m memForecasts) Append(ctx context.Context, f *models.TrendForecast) error {
	return m.AppendForecast(ctx, f)
}

func (m memForecasts) Latest(ctx context.Context, item string, horizon domrepo.Horizon) (*models.TrendForecast, error) {
	return m.LatestForecast(ctx, item, horizon)
}

type memLearning struct{ *MemoryStore }

func (m memLearning) Get(ctx context.Context, id string) (*models.LearningEvent, error) {
	return m.GetEvent(ctx, id)
}

type memMetrics struct{ *MemoryStore }

func (m memMetrics) Get(ctx context.Context, category string) (*models.PerformanceMetric, error) {
	return m.GetMetric(ctx, category)
}

func (m memMetrics) Upsert(ctx context.Context, pm *models.PerformanceMetric) error {
	return m.UpsertMetric(ctx, pm)
}

func (m memMetrics) List(ctx context.Context) ([]models.PerformanceMetric, error) {
	return m.ListMetrics(ctx)
}

// ObservationStore returns the append-only observation log view.
func (s *MemoryStore) ObservationStore() domrepo.ObservationStore { return s }

// EstimateStore returns the current+history estimate view.
func (s *MemoryStore) EstimateStore() domrepo.EstimateStore { return s }

// SourceStore returns the source registry persistence view.
func (s *MemoryStore) SourceStore() domrepo.SourceStore { return s }

// ForecastStore returns the append-only forecast log view.
func (s *MemoryStore) ForecastStore() domrepo.ForecastStore { return memForecasts{s} }

// LearningStore returns the learning-event view.
func (s *MemoryStore) LearningStore() domrepo.LearningStore { return memLearning{s} }

// MetricStore returns the performance-metric view.
func (s *MemoryStore) MetricStore() domrepo.MetricStore { return memMetrics{s} }

var (
	_ domrepo.ObservationStore = (*MemoryStore)(nil)
	_ domrepo.EstimateStore    = (*MemoryStore)(nil)
	_ domrepo.SourceStore      = (*MemoryStore)(nil)
	_ domrepo.ForecastStore    = memForecasts{}
	_ domrepo.LearningStore    = memLearning{}
	_ domrepo.MetricStore      = memMetrics{}
)
