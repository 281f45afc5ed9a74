package usecase

import (
	"context"
	"fmt"
	"time"

	"CoinPulse/internal/domain/models"
	drepo "CoinPulse/internal/domain/repository"
	pkgkafka "CoinPulse/pkg/kafka"
)

// ObservationProcessor routes feed observations to the configured path: the
// "kafka" backend publishes raw frames for the consumer group to ingest, any
// other backend ingests synchronously in-process.
type ObservationProcessor struct {
	producer *pkgkafka.Producer
	topic    string
	ingestor *Ingestor
	metrics  drepo.Metrics
	backend  string
}

func NewObservationProcessor(producer *pkgkafka.Producer, topic string, ingestor *Ingestor, metrics drepo.Metrics, backend string) *ObservationProcessor {
	return &ObservationProcessor{
		producer: producer,
		topic:    topic,
		ingestor: ingestor,
		metrics:  metrics,
		backend:  backend,
	}
}

// Ingest routes a single observation.
func (p *ObservationProcessor) Ingest(ctx context.Context, o *models.RawObservation) error {
	if o == nil {
		return fmt.Errorf("observation is nil")
	}

	start := time.Now()
	var err error
	switch p.backend {
	case "kafka":
		err = p.publishRaw(ctx, o)
	default:
		_, err = p.ingestor.IngestBatch(ctx, []models.RawObservation{*o})
	}
	if err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process observation: %w", err)
	}
	p.metrics.RecordObservation(p.backend, o.SourceID)
	p.metrics.RecordLatency("process", time.Since(start).Seconds())
	return nil
}

func (p *ObservationProcessor) publishRaw(ctx context.Context, o *models.RawObservation) error {
	if p.producer == nil {
		return fmt.Errorf("kafka producer not configured")
	}
	return p.producer.Publish(ctx, p.topic, []byte(o.ItemID), o)
}

// Close closes underlying resources if available.
func (p *ObservationProcessor) Close() {
	if p.producer != nil {
		_ = p.producer.Close()
	}
}
