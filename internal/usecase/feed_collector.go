package usecase

import (
	"context"

	"CoinPulse/internal/domain/models"
	drepo "CoinPulse/internal/domain/repository"
	mid "CoinPulse/internal/middleware"
)

// FeedCollector connects to a collaborator observation feed and pushes frames
// through the ingest pipeline.
type FeedCollector struct {
	stream  drepo.ObservationStream
	proc    *ObservationProcessor
	metrics drepo.Metrics
	pipe    *mid.IngestPipeline
}

// NewFeedCollector creates a new FeedCollector instance.
func NewFeedCollector(stream drepo.ObservationStream, proc *ObservationProcessor, metrics drepo.Metrics, pipe *mid.IngestPipeline) *FeedCollector {
	return &FeedCollector{stream: stream, proc: proc, metrics: metrics, pipe: pipe}
}

// IsConnected returns true if the feed stream is connected.
func (c *FeedCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *FeedCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	go c.consume(ctx)
	return nil
}

// consume drains one connection's channels until they fail, then reconnects
// and reads the fresh pair. Read channels close with their connection, so a
// new Read is required after every reconnect.
func (c *FeedCollector) consume(ctx context.Context) {
	for {
		obsCh, errCh := c.stream.Read(ctx)
		if done := c.drain(ctx, obsCh, errCh); done {
			return
		}
		c.metrics.RecordError("stream")
		if err := c.stream.Reconnect(ctx); err != nil {
			c.metrics.RecordError("stream_reconnect")
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// drain processes observations until the channels fail or close. It returns
// true only when the context ends.
func (c *FeedCollector) drain(ctx context.Context, obsCh <-chan *models.RawObservation, errCh <-chan error) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case err, ok := <-errCh:
			if !ok || err != nil {
				return false
			}
		case o, ok := <-obsCh:
			if !ok {
				return false
			}
			if o == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, o)
			} else {
				_ = c.proc.Ingest(ctx, o)
			}
		}
	}
}

func (c *FeedCollector) Stop() error { return c.stream.Close() }

// Processor returns the underlying ObservationProcessor for lifecycle management.
func (c *FeedCollector) Processor() *ObservationProcessor { return c.proc }

// Shutdown stops the pipeline and closes the stream.
func (c *FeedCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
