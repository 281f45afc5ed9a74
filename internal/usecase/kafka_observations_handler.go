package usecase

import (
	"context"
	"encoding/json"
	"time"

	"CoinPulse/internal/domain/models"
	domrepo "CoinPulse/internal/domain/repository"
	pkgkafka "CoinPulse/pkg/kafka"
)

// KafkaObservationsHandler consumes observation messages and feeds them to the
// ingestor. Messages may carry one observation or a batch.
type KafkaObservationsHandler struct {
	topic    string
	ingestor *Ingestor
	metrics  domrepo.Metrics
}

func NewKafkaObservationsHandler(topic string, ingestor *Ingestor, metrics domrepo.Metrics) *KafkaObservationsHandler {
	return &KafkaObservationsHandler{topic: topic, ingestor: ingestor, metrics: metrics}
}

func (h *KafkaObservationsHandler) Topic() string { return h.topic }

func (h *KafkaObservationsHandler) Handle(ctx context.Context, b []byte) error {
	batch, err := decodeObservations(b)
	if err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if len(batch) > 0 && !batch[0].ObservedAt.IsZero() {
		// E2E latency from event time to now (approx)
		h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(batch[0].ObservedAt).Seconds())
	}

	start := time.Now()
	_, err = h.ingestor.IngestBatch(ctx, batch)
	h.metrics.RecordLatency("consumer_ingest_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_ingest")
		return err
	}
	return nil
}

// decodeObservations accepts either a JSON array of observations or a single
// observation object.
func decodeObservations(b []byte) ([]models.RawObservation, error) {
	var batch []models.RawObservation
	if err := json.Unmarshal(b, &batch); err == nil {
		return batch, nil
	}
	var one models.RawObservation
	if err := json.Unmarshal(b, &one); err != nil {
		return nil, err
	}
	return []models.RawObservation{one}, nil
}

var _ pkgkafka.MessageHandler = (*KafkaObservationsHandler)(nil)
