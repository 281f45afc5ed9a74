package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"CoinPulse/internal/services/registry"
	"CoinPulse/internal/usecase"
	pkgch "CoinPulse/pkg/clickhouse"
	"CoinPulse/pkg/config"
	xhttp "CoinPulse/pkg/http"
	pkgkafka "CoinPulse/pkg/kafka"
	applogger "CoinPulse/pkg/logger"
	pkgqueue "CoinPulse/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	l           *applogger.Logger
	collector   *usecase.FeedCollector
	consumer    *pkgkafka.Consumer
	kh          pkgkafka.MessageHandler
	chClient    *pkgch.Client
	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
	jobQueue    *pkgqueue.RedisQueue
	feedback    *usecase.FeedbackEngine
	registry    *registry.Registry
	ObsProc     *usecase.ObservationProcessor
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	collector *usecase.FeedCollector,
	consumer *pkgkafka.Consumer,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:       cfg,
		l:         l,
		collector: collector,
		consumer:  consumer,
		chClient:  chClient,
	}
}

// SetHTTPHandler allows DI to inject an HTTP handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// SetConsumerHandler attaches the Kafka topic handler.
func (a *App) SetConsumerHandler(h pkgkafka.MessageHandler) { a.kh = h }

// SetJobQueue attaches the background job queue.
func (a *App) SetJobQueue(q *pkgqueue.RedisQueue) { a.jobQueue = q }

// SetSweeps attaches the engines driven by the periodic sweep loop.
func (a *App) SetSweeps(fb *usecase.FeedbackEngine, reg *registry.Registry) {
	a.feedback = fb
	a.registry = reg
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	// Start collector when a feed is configured
	if a.collector != nil {
		go func() {
			if err := a.collector.Start(ctx); err != nil {
				a.l.Error("collector error", applogger.Error(err))
			}
		}()
		a.l.Info("feed collector started", applogger.Strings("channels", a.cfg.Feed.Channels))
	}

	// Start consumer if configured
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	// Start job queue
	if a.jobQueue != nil {
		if err := a.jobQueue.Start(); err != nil {
			a.l.Error("job queue start error", applogger.Error(err))
		} else {
			a.l.Info("job queue started")
		}
	}

	go a.sweepLoop(ctx)

	// Start HTTP server
	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// sweepLoop applies pending feedback periodically and deactivates sources that
// stopped reporting.
func (a *App) sweepLoop(ctx context.Context) {
	if a.feedback == nil && a.registry == nil {
		return
	}
	interval := a.cfg.Engine.Feedback.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	sweep := time.NewTicker(interval)
	defer sweep.Stop()
	stale := time.NewTicker(24 * time.Hour)
	defer stale.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			if a.feedback == nil {
				continue
			}
			if n, err := a.feedback.Sweep(ctx); err != nil {
				a.l.Warn("feedback sweep error", applogger.Error(err))
			} else if n > 0 {
				a.l.Info("feedback sweep applied", applogger.Int("count", n))
			}
		case <-stale.C:
			if a.registry == nil || a.cfg.Engine.Registry.SourceMaxAge <= 0 {
				continue
			}
			if _, err := a.registry.DeactivateStale(ctx, a.cfg.Engine.Registry.SourceMaxAge); err != nil {
				a.l.Warn("stale source sweep error", applogger.Error(err))
			}
		}
	}
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	a.l.Info("shutting down...")

	// Stop collector (pipeline + stream)
	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.l.Warn("collector stop error", applogger.Error(err))
		}
	}

	// Shutdown HTTP server
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	// Stop job queue
	if a.jobQueue != nil {
		if err := a.jobQueue.Stop(shutdownCtx); err != nil {
			a.l.Warn("job queue stop error", applogger.Error(err))
		}
	}

	// Stop consumer
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	// Close infrastructure clients
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	// Close processor resources (producer)
	if a.ObsProc != nil {
		a.ObsProc.Close()
	}

	a.l.Info("shutdown complete")
	return nil
}
