package repository

import (
	"context"

	"CoinPulse/internal/domain/models"
)

// ObservationStream is a push feed of raw observations from a collaborator
// (scraper or recognition service) over a persistent connection.
type ObservationStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.RawObservation, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Publisher forwards accepted observations to a downstream bus.
type Publisher interface {
	Publish(ctx context.Context, o *models.PriceObservation) error
	PublishBatch(ctx context.Context, obs []*models.PriceObservation) error
	Close() error
}

type Metrics interface {
	RecordObservation(backend, source string)
	RecordError(kind string)
	RecordEstimate(item string, average float64)
	RecordLatency(op string, seconds float64)
}
