package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"CoinPulse/internal/domain/repository"
	domsvc "CoinPulse/internal/domain/service"
	"CoinPulse/internal/handler/api"
	mid "CoinPulse/internal/middleware"
	internalrepo "CoinPulse/internal/repository"
	icache "CoinPulse/internal/service/cache"
	"CoinPulse/internal/service/feed"
	"CoinPulse/internal/service/keylock"
	"CoinPulse/internal/services/rates"
	"CoinPulse/internal/services/registry"
	"CoinPulse/internal/usecase"
	pkgcache "CoinPulse/pkg/cache"
	pkgch "CoinPulse/pkg/clickhouse"
	"CoinPulse/pkg/config"
	pkgkafka "CoinPulse/pkg/kafka"
	applogger "CoinPulse/pkg/logger"
	"CoinPulse/pkg/metrics"
	pkgqueue "CoinPulse/pkg/queue"
	"CoinPulse/pkg/server"

	"github.com/redis/go-redis/v9"
)

// Stores bundles the persistence interfaces behind one backend choice.
type Stores struct {
	Observations repository.ObservationStore
	Estimates    repository.EstimateStore
	Forecasts    repository.ForecastStore
	Sources      repository.SourceStore
	Learning     repository.LearningStore
	Metrics      repository.MetricStore
	CH           *pkgch.Client // nil for the memory backend
}

// ProvideStores selects the persistence backend. The memory backend keeps
// everything in-process; anything else goes through ClickHouse.
func ProvideStores(cfg *config.Config) (*Stores, error) {
	if cfg.Backend.Type == "memory" {
		m := internalrepo.NewMemoryStore()
		return &Stores{
			Observations: m.ObservationStore(),
			Estimates:    m.EstimateStore(),
			Forecasts:    m.ForecastStore(),
			Sources:      m.SourceStore(),
			Learning:     m.LearningStore(),
			Metrics:      m.MetricStore(),
		}, nil
	}

	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.SchemaStatements(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	db := cfg.ClickHouse.Database
	return &Stores{
		Observations: internalrepo.NewCHObservationStore(client, db+".observations"),
		Estimates:    internalrepo.NewCHEstimateStore(client, db+".estimates_current", db+".estimates_history"),
		Forecasts:    internalrepo.NewCHForecastStore(client, db+".forecasts"),
		Sources:      internalrepo.NewCHSourceStore(client, db+".sources"),
		Learning:     internalrepo.NewCHLearningStore(client, db+".learning_events"),
		Metrics:      internalrepo.NewCHMetricStore(client, db+".performance_metrics"),
		CH:           client,
	}, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML, or nil
// when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	level := "info"
	if cfg.Environment == "development" {
		level = "debug"
	}
	return applogger.New(&applogger.Config{Level: level, Format: "console", Output: "stdout"})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRateProvider builds the currency conversion chain: static table,
// refreshed from the rate service when one is configured.
func ProvideRateProvider(cfg *config.Config) domsvc.RateProvider {
	base := cfg.Currency.Base
	if base == "" {
		base = "USD"
	}
	static := rates.NewStaticProvider(base, cfg.Currency.StaticRates)
	if cfg.Currency.RatesURL == "" {
		return static
	}
	return rates.NewHTTPProvider(cfg, static)
}

// ProvideRegistry creates the source reliability registry.
func ProvideRegistry(stores *Stores, cfg *config.Config, l *applogger.Logger) *registry.Registry {
	opts := []registry.Option{}
	if cfg.Engine.Registry.Alpha > 0 {
		opts = append(opts, registry.WithAlpha(cfg.Engine.Registry.Alpha))
	}
	if cfg.Engine.Registry.Prior > 0 {
		opts = append(opts, registry.WithPrior(cfg.Engine.Registry.Prior))
	}
	r := registry.New(stores.Sources, opts...)
	r.SetLogger(l)
	return r
}

// ProvideKeyLock creates the item-level lock shared by aggregation paths.
func ProvideKeyLock() *keylock.KeyLock {
	return keylock.New()
}

// ProvideIngestor creates the observation ingestor use case.
func ProvideIngestor(
	stores *Stores,
	reg *registry.Registry,
	rp domsvc.RateProvider,
	m repository.Metrics,
	producer *pkgkafka.Producer,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.Ingestor {
	opts := []usecase.IngestorOption{}
	if cfg.Engine.Ingest.RetryMax > 0 {
		opts = append(opts, usecase.WithRetryMax(cfg.Engine.Ingest.RetryMax))
	}
	if producer != nil && cfg.Kafka.Topic != "" {
		opts = append(opts, usecase.WithPublisher(internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)))
	}
	ing := usecase.NewIngestor(stores.Observations, reg, rp, m, opts...)
	ing.SetLogger(l)
	return ing
}

// ProvideAggregator creates the aggregation engine.
func ProvideAggregator(stores *Stores, reg *registry.Registry, locks *keylock.KeyLock, m repository.Metrics, cfg *config.Config, l *applogger.Logger) *usecase.Aggregator {
	opts := []usecase.AggregatorOption{
		usecase.WithLookback(cfg.Engine.Aggregation.Lookback),
		usecase.WithMaxObservations(cfg.Engine.Aggregation.MaxObservations),
		usecase.WithRecencyTau(cfg.Engine.Aggregation.RecencyTauDays),
	}
	a := usecase.NewAggregator(stores.Observations, stores.Estimates, reg, locks, m, opts...)
	a.SetLogger(l)
	return a
}

// ProvideForecaster creates the trend forecaster.
func ProvideForecaster(stores *Stores, locks *keylock.KeyLock, m repository.Metrics, cfg *config.Config, l *applogger.Logger) *usecase.Forecaster {
	f := usecase.NewForecaster(stores.Estimates, stores.Forecasts, locks, m,
		usecase.WithForecastTTL(cfg.Engine.Forecast.TTL),
		usecase.WithHistoryLookback(cfg.Engine.Forecast.Lookback),
	)
	f.SetLogger(l)
	return f
}

// ProvideFeedbackEngine creates the feedback learning engine.
func ProvideFeedbackEngine(stores *Stores, reg *registry.Registry, m repository.Metrics, cfg *config.Config, l *applogger.Logger) *usecase.FeedbackEngine {
	opts := []usecase.FeedbackOption{}
	if cfg.Engine.Feedback.SweepBatch > 0 {
		opts = append(opts, usecase.WithSweepBatch(cfg.Engine.Feedback.SweepBatch))
	}
	f := usecase.NewFeedbackEngine(stores.Learning, stores.Metrics, reg, m, opts...)
	f.SetLogger(l)
	return f
}

// ProvideHistory creates the estimate history use case.
func ProvideHistory(stores *Stores) *usecase.HistoryUseCase {
	return usecase.NewHistoryUseCase(stores.Estimates)
}

// ProvideObservationProcessor routes feed observations per the backend config.
func ProvideObservationProcessor(producer *pkgkafka.Producer, ing *usecase.Ingestor, m repository.Metrics, cfg *config.Config) *usecase.ObservationProcessor {
	return usecase.NewObservationProcessor(producer, cfg.Kafka.Topic, ing, m, cfg.Backend.Type)
}

// ProvideFeedStream creates the collaborator feed stream, or nil when disabled.
func ProvideFeedStream(cfg *config.Config) repository.ObservationStream {
	if !cfg.Feed.Enabled {
		return nil
	}
	return feed.New(
		cfg.Feed.APIKey,
		cfg.Feed.WebSocketURL,
		cfg.Feed.Channels,
		cfg.Feed.ReconnectDelay,
		cfg.Feed.PingInterval,
	)
}

// ProvideFeedCollector creates the feed collector, or nil without a stream.
func ProvideFeedCollector(
	stream repository.ObservationStream,
	proc *usecase.ObservationProcessor,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.FeedCollector {
	if stream == nil {
		return nil
	}
	pipe := mid.NewIngestPipeline(proc, m,
		mid.WithMaxRPS(cfg.Feed.MaxRPS),
		mid.WithBufferSize(cfg.Feed.BufferSize),
	)
	return usecase.NewFeedCollector(stream, proc, m, pipe)
}

// ProvideObservationsHandler registers the consumer handler for the
// observations topic, or nil when Kafka routing is off.
func ProvideObservationsHandler(ing *usecase.Ingestor, m repository.Metrics, cfg *config.Config) *usecase.KafkaObservationsHandler {
	if !cfg.Kafka.Enabled || cfg.Kafka.Topic == "" {
		return nil
	}
	return usecase.NewKafkaObservationsHandler(cfg.Kafka.Topic, ing, m)
}

// ProvideCache creates the byte cache for read endpoints: layered
// memory+Redis when Redis is enabled, in-process memory otherwise.
func ProvideCache(cfg *config.Config) icache.BytesCache {
	if !cfg.Cache.Redis.Enabled {
		return icache.NewServiceBytes(pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(4096)))
	}
	host, port := splitHostPort(cfg.Cache.Redis.Addr)
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Cache.Redis.Password),
		pkgcache.WithRedisDB(cfg.Cache.Redis.DB),
		pkgcache.WithRedisPrefix("coinpulse"),
	)
	if err != nil {
		// degrade to memory-only caching rather than failing startup
		return icache.NewServiceBytes(pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(4096)))
	}
	return icache.NewServiceBytes(pkgcache.NewLayeredCache(rc))
}

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 6379
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 6379
	}
	return host, port
}

// ProvideJobQueue creates the Redis job queue with the engine's jobs
// registered, or nil when Redis is disabled.
func ProvideJobQueue(cfg *config.Config, l *applogger.Logger, fb *usecase.FeedbackEngine, agg *usecase.Aggregator) *pkgqueue.RedisQueue {
	if !cfg.Cache.Redis.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
	})
	jobs := []pkgqueue.Job{
		usecase.NewApplyFeedbackJob(fb),
		usecase.NewAggregateItemJob(agg),
	}
	return pkgqueue.NewRedisConsumer(l, &pkgqueue.QueueConfig{
		Workers:    2,
		RetryLimit: 3,
		RetryDelay: 5 * time.Second,
	}, client, jobs, pkgqueue.WithKeyPrefix("coinpulse"))
}

// ProvideEngineHandler builds the HTTP surface.
func ProvideEngineHandler(
	l *applogger.Logger,
	ing *usecase.Ingestor,
	agg *usecase.Aggregator,
	fc *usecase.Forecaster,
	fb *usecase.FeedbackEngine,
	hist *usecase.HistoryUseCase,
	reg *registry.Registry,
	cache icache.BytesCache,
) *api.EngineHandler {
	h := api.NewEngineHandler(l, ing, agg, fc, fb, hist, reg)
	if cache != nil {
		h.SetCache(cache)
	}
	return h
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	collector *usecase.FeedCollector,
	producer *pkgkafka.Producer,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaObservationsHandler,
	handler *api.EngineHandler,
	stores *Stores,
	jobQueue *pkgqueue.RedisQueue,
	fb *usecase.FeedbackEngine,
	reg *registry.Registry,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}
	if producer != nil && cfg.Kafka.LogsTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.LogsTopic,
			Publisher:      producer,
		})
	}
	app := server.New(cfg, l, collector, consumer, stores.CH)
	if kh != nil {
		app.SetConsumerHandler(kh)
	}
	app.SetHTTPHandler(handler)
	app.SetJobQueue(jobQueue)
	app.SetSweeps(fb, reg)
	if collector != nil {
		app.ObsProc = collector.Processor()
	}
	return app
}
