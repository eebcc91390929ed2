//go:build wireinject
// +build wireinject

package di

import (
	"Qless/pkg/config"
	"Qless/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application and a
// cleanup that releases the control connection, the Kafka writer and the
// ClickHouse pool.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideRegistry,

		// Infrastructure clients
		ProvideBackendClient,
		ProvideKafkaProducer,
		ProvideClickHouseClient,

		// Event sinks
		ProvideHub,
		ProvideEventSink,

		// Workers
		ProvideSupervisor,

		// HTTP
		ProvideAPIHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return nil, nil, nil
}
