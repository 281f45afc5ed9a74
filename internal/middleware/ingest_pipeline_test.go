package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"CoinPulse/internal/domain/models"
)

type nopMetrics struct{}

func (nopMetrics) RecordObservation(backend, source string)    {}
func (nopMetrics) RecordError(kind string)                     {}
func (nopMetrics) RecordEstimate(item string, average float64) {}
func (nopMetrics) RecordLatency(op string, seconds float64)    {}

type fakeProc struct {
	mu   sync.Mutex
	got  []*models.RawObservation
	fail bool
}

func (f *fakeProc) Ingest(ctx context.Context, o *models.RawObservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("downstream down")
	}
	f.got = append(f.got, o)
	return nil
}

func (f *fakeProc) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func (f *fakeProc) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func TestPipelineRejectsInvalid(t *testing.T) {
	proc := &fakeProc{}
	p := NewIngestPipeline(proc, nopMetrics{})
	ctx := context.Background()

	cases := []*models.RawObservation{
		nil,
		{SourceID: "s", Price: 10},              // no item
		{ItemID: "i", Price: 10},                // no source
		{ItemID: "i", SourceID: "s", Price: 0},  // zero price
		{ItemID: "i", SourceID: "s", Price: -3}, // negative price
	}
	for i, o := range cases {
		if err := p.Process(ctx, o); err == nil {
			t.Fatalf("case %d: invalid observation accepted", i)
		}
	}
	if proc.count() != 0 {
		t.Fatalf("invalid observations reached downstream")
	}
}

func TestPipelineForwardsValid(t *testing.T) {
	proc := &fakeProc{}
	p := NewIngestPipeline(proc, nopMetrics{})
	if err := p.Process(context.Background(), &models.RawObservation{ItemID: "i", SourceID: "s", Price: 10}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if proc.count() != 1 {
		t.Fatalf("forwarded %d, want 1", proc.count())
	}
}

func TestPipelineThrottlesPerSource(t *testing.T) {
	proc := &fakeProc{}
	p := NewIngestPipeline(proc, nopMetrics{}, WithMaxRPS(1))
	ctx := context.Background()

	o := &models.RawObservation{ItemID: "i", SourceID: "fast", Price: 10}
	if err := p.Process(ctx, o); err != nil {
		t.Fatalf("first: %v", err)
	}
	// immediate second observation from the same source is dropped, not errored
	if err := p.Process(ctx, o); err != nil {
		t.Fatalf("throttled: %v", err)
	}
	if proc.count() != 1 {
		t.Fatalf("forwarded %d, want 1 after throttle", proc.count())
	}
	// a different source is not affected
	other := &models.RawObservation{ItemID: "i", SourceID: "slow", Price: 10}
	if err := p.Process(ctx, other); err != nil {
		t.Fatalf("other source: %v", err)
	}
	if proc.count() != 2 {
		t.Fatalf("forwarded %d, want 2", proc.count())
	}
}

func TestPipelineTransform(t *testing.T) {
	proc := &fakeProc{}
	p := NewIngestPipeline(proc, nopMetrics{}, WithTransform(func(o *models.RawObservation) *models.RawObservation {
		o.Currency = "USD"
		return o
	}))
	if err := p.Process(context.Background(), &models.RawObservation{ItemID: "i", SourceID: "s", Price: 10, Currency: "usd"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if proc.got[0].Currency != "USD" {
		t.Fatalf("transform not applied: %q", proc.got[0].Currency)
	}
}

func TestPipelineBuffersOnDownstreamFailure(t *testing.T) {
	proc := &fakeProc{fail: true}
	p := NewIngestPipeline(proc, nopMetrics{}, WithBufferSize(8))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := p.Process(ctx, &models.RawObservation{ItemID: "i", SourceID: "s", Price: 10})
	if err == nil {
		t.Fatalf("downstream failure must surface")
	}

	// once downstream recovers, the flush loop drains the buffer
	proc.setFail(false)
	p.Start(ctx)
	defer p.Stop()

	deadline := time.After(2 * time.Second)
	for proc.count() == 0 {
		select {
		case <-deadline:
			t.Fatalf("buffered observation never flushed")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
