//go:build wireinject
// +build wireinject

package di

import (
	"CoinPulse/pkg/config"
	"CoinPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideStores,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideCache,

		// Domain services
		ProvideRateProvider,
		ProvideRegistry,
		ProvideKeyLock,

		// Use cases
		ProvideIngestor,
		ProvideAggregator,
		ProvideForecaster,
		ProvideFeedbackEngine,
		ProvideHistory,
		ProvideObservationProcessor,
		ProvideFeedStream,
		ProvideFeedCollector,
		ProvideObservationsHandler,
		ProvideJobQueue,

		// HTTP surface
		ProvideEngineHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
