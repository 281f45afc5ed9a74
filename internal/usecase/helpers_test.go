package usecase

import (
	"CoinPulse/internal/repository"
	"CoinPulse/internal/service/keylock"
	"CoinPulse/internal/services/rates"
	"CoinPulse/internal/services/registry"
)

// nopMetrics satisfies the metrics interface without touching Prometheus, so
// parallel test packages do not fight over collector registration.
type nopMetrics struct{}

func (nopMetrics) RecordObservation(backend, source string)    {}
func (nopMetrics) RecordError(kind string)                     {}
func (nopMetrics) RecordEstimate(item string, average float64) {}
func (nopMetrics) RecordLatency(op string, seconds float64)    {}

type engineFixture struct {
	store    *repository.MemoryStore
	registry *registry.Registry
	rates    *rates.StaticProvider
	locks    *keylock.KeyLock
}

func newFixture() *engineFixture {
	store := repository.NewMemoryStore()
	return &engineFixture{
		store:    store,
		registry: registry.New(store.SourceStore()),
		rates:    rates.NewStaticProvider("USD", map[string]float64{"EUR": 1.1, "GBP": 1.25}),
		locks:    keylock.New(),
	}
}
