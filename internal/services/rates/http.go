package rates

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	domsvc "CoinPulse/internal/domain/service"
	"CoinPulse/pkg/config"
	xhttp "CoinPulse/pkg/http"
)

// HTTPProvider pulls conversion rates from an external rate service and caches
// them for the configured TTL. On a cache miss it falls back to the static
// table, so a rate-service outage degrades to stale rates instead of failing
// ingestion outright.
type HTTPProvider struct {
	baseURL  string
	client   *xhttp.Client
	ttl      time.Duration
	fallback *StaticProvider

	mu      sync.Mutex
	fetched time.Time
}

func NewHTTPProvider(cfg *config.Config, fallback *StaticProvider) *HTTPProvider {
	timeout := cfg.Currency.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ttl := cfg.Currency.RefreshInterval
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &HTTPProvider{
		baseURL:  cfg.Currency.RatesURL,
		client:   xhttp.NewClient(xhttp.WithTimeout(timeout)),
		ttl:      ttl,
		fallback: fallback,
	}
}

func (p *HTTPProvider) Base() string { return p.fallback.Base() }

type ratesResp struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

func (p *HTTPProvider) Rate(ctx context.Context, currency string) (float64, bool, error) {
	p.mu.Lock()
	needs := p.baseURL != "" && time.Since(p.fetched) > p.ttl
	p.mu.Unlock()
	if needs {
		// soft failure: keep serving the last known table
		_ = p.refresh(ctx)
	}
	return p.fallbackRate(ctx, currency)
}

func (p *HTTPProvider) fallbackRate(ctx context.Context, currency string) (float64, bool, error) {
	return p.fallback.Rate(ctx, currency)
}

func (p *HTTPProvider) refresh(ctx context.Context) error {
	var rr ratesResp
	err := p.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         p.baseURL,
		QueryParams: map[string][]string{"base": {p.fallback.Base()}},
	}, &rr)
	if err != nil {
		return fmt.Errorf("fetch rates: %w", err)
	}
	for cur, perBase := range rr.Rates {
		// service reports base->currency; ingestion needs currency->base
		if perBase > 0 {
			p.fallback.Set(strings.ToUpper(cur), 1/perBase)
		}
	}
	p.mu.Lock()
	p.fetched = time.Now()
	p.mu.Unlock()
	return nil
}

var _ domsvc.RateProvider = (*HTTPProvider)(nil)
