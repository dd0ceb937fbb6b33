//go:build wireinject
// +build wireinject

package di

import (
	"QuantDesk/pkg/config"
	"QuantDesk/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application
// together with a cleanup that closes infrastructure clients.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// infrastructure
		ProvideRedis,
		ProvideCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideErrorDigest,

		// repositories
		ProvideCandleSource,
		ProvideSignalPublisher,
		ProvideCheckpointStore,

		// engine and use cases
		ProvideAgentRegistry,
		ProvideEngineConfig,
		ProvideEngineService,
		ProvideOverview,
		ProvideCandles,
		ProvideQueue,
		ProvideTrainJobs,

		// transport
		ProvideLimiter,
		ProvideHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}
