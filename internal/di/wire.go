//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"FuturesCast/pkg/config"
	"FuturesCast/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideRegisterer,
		ProvideMetrics,
		ProvideAPIMetrics,

		// Infrastructure clients
		ProvideCacheBackend,
		ProvideTTLPolicy,
		ProvideMarketCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideOpenAIClient,

		// Repositories and providers
		ProvideQuoteStore,
		ProvideQuoteProvider,
		ProvideCurveAssembler,
		ProvideCurveSource,
		ProvideRiskProvider,
		ProvideTextFallback,
		ProvideForecastPublisher,

		// Use cases
		ProvideMapper,
		ProvideCombiner,
		ProvideOrchestrator,

		// Transport
		ProvideRateLimiter,
		ProvideHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
