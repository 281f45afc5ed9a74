package rates

import (
	"context"
	"strings"
	"sync"

	domsvc "CoinPulse/internal/domain/service"
)

// StaticProvider resolves rates from a fixed table, used as the bottom layer
// of the chain and in tests. Rates convert one unit of the currency into the
// base currency.
type StaticProvider struct {
	mu    sync.RWMutex
	base  string
	table map[string]float64
}

func NewStaticProvider(base string, table map[string]float64) *StaticProvider {
	norm := make(map[string]float64, len(table)+1)
	for k, v := range table {
		norm[strings.ToUpper(k)] = v
	}
	base = strings.ToUpper(base)
	norm[base] = 1
	return &StaticProvider{base: base, table: norm}
}

func (p *StaticProvider) Base() string { return p.base }

func (p *StaticProvider) Rate(ctx context.Context, currency string) (float64, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.table[strings.ToUpper(currency)]
	return r, ok, nil
}

// Set updates a rate at runtime (e.g. after a refresh from the HTTP provider).
func (p *StaticProvider) Set(currency string, rate float64) {
	p.mu.Lock()
	p.table[strings.ToUpper(currency)] = rate
	p.mu.Unlock()
}

var _ domsvc.RateProvider = (*StaticProvider)(nil)
