//go:build wireinject
// +build wireinject

package di

import (
	"SqueezeScan/pkg/config"
	"SqueezeScan/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideCacheService,

		// Repositories
		ProvideMarketData,
		ProvideMarketCache,
		ProvideResultStore,
		ProvideEventPublisher,
		ProvideLLMClient,

		// Use cases
		ProvideScanner,
		ProvideStockService,
		ProvideReportService,

		// HTTP handler and application server
		ProvideScanHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
