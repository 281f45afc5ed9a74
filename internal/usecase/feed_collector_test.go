package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"CoinPulse/internal/domain/models"
)

// scriptedStream plays one observation batch per connection session. Each
// session's observation channel closes once drained, the way a dropped
// connection closes the real stream's channels; the error channel stays open.
type scriptedStream struct {
	mu         sync.Mutex
	sessions   [][]*models.RawObservation
	reads      int
	reconnects int
	connected  bool
}

func (s *scriptedStream) Connect(ctx context.Context) error {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

func (s *scriptedStream) Subscribe(ctx context.Context) error { return nil }

func (s *scriptedStream) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	s.reconnects++
	s.connected = true
	s.mu.Unlock()
	return nil
}

func (s *scriptedStream) Close() error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return nil
}

func (s *scriptedStream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *scriptedStream) Read(ctx context.Context) (<-chan *models.RawObservation, <-chan error) {
	s.mu.Lock()
	i := s.reads
	s.reads++
	s.mu.Unlock()

	errs := make(chan error, 1)
	if i >= len(s.sessions) {
		// out of script: block until shutdown
		return make(chan *models.RawObservation), errs
	}
	obs := make(chan *models.RawObservation, len(s.sessions[i]))
	for _, o := range s.sessions[i] {
		obs <- o
	}
	close(obs)
	return obs, errs
}

func (s *scriptedStream) reconnectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

func TestFeedCollectorResumesAfterReconnect(t *testing.T) {
	fx := newFixture()
	ing := NewIngestor(fx.store.ObservationStore(), fx.registry, fx.rates, nopMetrics{})
	proc := NewObservationProcessor(nil, "", ing, nopMetrics{}, "memory")
	stream := &scriptedStream{sessions: [][]*models.RawObservation{
		{{ItemID: "morgan dollar", SourceID: "ebay", Price: 100}},
		{{ItemID: "peace dollar", SourceID: "ebay", Price: 90}},
	}}
	collector := NewFeedCollector(stream, proc, nopMetrics{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := collector.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	// the second item arrives on the connection established after the first
	// one dropped
	deadline := time.Now().Add(2 * time.Second)
	for {
		first, _ := fx.store.Window(ctx, "morgan dollar", time.Now().Add(-time.Hour), 1)
		second, _ := fx.store.Window(ctx, "peace dollar", time.Now().Add(-time.Hour), 1)
		if len(first) == 1 && len(second) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("observations not consumed: first=%d second=%d", len(first), len(second))
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := stream.reconnectCount(); got < 1 {
		t.Fatalf("reconnects = %d, want at least 1", got)
	}
}
