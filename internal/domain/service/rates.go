package service

import "context"

// RateProvider resolves a conversion rate from a currency into the engine's
// base currency. A missing rate is reported via ok=false, not an error: the
// ingestor parks the observation and retries on the next cycle.
type RateProvider interface {
	Rate(ctx context.Context, currency string) (rate float64, ok bool, err error)
	Base() string
}
