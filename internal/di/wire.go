//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"PaperQuant/internal/domain/service"
	"PaperQuant/pkg/config"
	"PaperQuant/pkg/logger"
	"PaperQuant/pkg/server"
)

var infraSet = wire.NewSet(
	ProvideMetrics,
	ProvideClickHouseClient,
	ProvideRedisClient,
	ProvideKafkaProducer,
)

var tradingSet = wire.NewSet(
	ProvideAccount,
	ProvideStatusBoard,
	ProvidePortfolio,
	ProvideRiskEngine,
	ProvideDecisionEngine,
	ProvideAggregator,
	ProvideFeatureComputer,
	ProvideTickPipeline,
)

// InitializeApp wires the live paper trader around an already loaded scorer.
func InitializeApp(cfg *config.Config, log *logger.Logger, scorer service.Scorer) (*server.App, func(), error) {
	wire.Build(
		infraSet,
		tradingSet,

		// Sinks
		ProvideCandleStore,
		ProvideLedgers,
		ProvideStateStore,
		ProvideResponseCache,

		// Feed and loop
		ProvideTickFeed,
		ProvideLiveRunner,

		// Status API
		ProvideStatusHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeRelay wires the exchange to Kafka tick relay.
func InitializeRelay(cfg *config.Config, log *logger.Logger) (*server.Relay, func(), error) {
	wire.Build(
		ProvideMetrics,
		ProvideKafkaProducer,
		ProvideUpbitFeed,
		ProvideTickPublisher,
		ProvideTickRelay,
		ProvideRelay,
	)
	return nil, nil, nil
}
