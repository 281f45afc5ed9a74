package cache

import (
	"context"
	"errors"
	"time"

	pkgcache "CoinPulse/pkg/cache"
)

// ServiceBytes adapts a pkg/cache Service to the BytesCache API used by the
// HTTP handlers.
type ServiceBytes struct {
	svc pkgcache.Service
}

func NewServiceBytes(svc pkgcache.Service) *ServiceBytes {
	return &ServiceBytes{svc: svc}
}

func (a *ServiceBytes) GetBytes(key string) ([]byte, bool, error) {
	var s string
	err := a.svc.Get(context.Background(), key, &s)
	if err != nil {
		if errors.Is(err, pkgcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return []byte(s), true, nil
}

func (a *ServiceBytes) SetBytes(key string, value []byte, ttl time.Duration) error {
	return a.svc.Set(context.Background(), key, string(value), ttl)
}

var _ BytesCache = (*ServiceBytes)(nil)
