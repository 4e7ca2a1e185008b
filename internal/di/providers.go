package di

import (
	"context"
	"fmt"
	"time"

	"SqueezeScan/internal/domain/repository"
	"SqueezeScan/internal/handler/api"
	internalrepo "SqueezeScan/internal/repository"
	icache "SqueezeScan/internal/service/cache"
	"SqueezeScan/internal/service/eastmoney"
	"SqueezeScan/internal/service/llm"
	"SqueezeScan/internal/usecase"
	"SqueezeScan/pkg/cache"
	pkgch "SqueezeScan/pkg/clickhouse"
	"SqueezeScan/pkg/config"
	phttp "SqueezeScan/pkg/http"
	pkgkafka "SqueezeScan/pkg/kafka"
	applogger "SqueezeScan/pkg/logger"
	"SqueezeScan/pkg/metrics"
	"SqueezeScan/pkg/retry"
	"SqueezeScan/pkg/server"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
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
	return client, nil
}

// ProvideCacheService selects the cache backend: memory only, or a
// layered memory-over-redis cache when redis is enabled.
func ProvideCacheService(cfg *config.Config) (cache.Service, error) {
	if !cfg.Cache.Redis.Enabled {
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize)), nil
	}

	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Cache.Redis.Host),
		cache.WithRedisPort(cfg.Cache.Redis.Port),
		cache.WithRedisPassword(cfg.Cache.Redis.Password),
		cache.WithRedisDB(cfg.Cache.Redis.DB),
		cache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache.NewLayeredCache(rc, cache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideMarketData creates the quote provider client.
func ProvideMarketData(cfg *config.Config, l *applogger.Logger) repository.MarketData {
	client := eastmoney.New(
		phttp.NewClient(phttp.WithTimeout(cfg.DataSource.Timeout)),
		eastmoney.Options{
			BoardURL:  cfg.DataSource.BoardURL,
			KlineURL:  cfg.DataSource.KlineURL,
			UserAgent: cfg.DataSource.UserAgent,
			PageSize:  cfg.DataSource.PageSize,
			Retry: retry.Options{
				MaxAttempts: cfg.Scanner.MaxRetries,
				BaseDelay:   cfg.Scanner.RetryBaseDelay,
			},
		},
	)
	client.SetLogger(l)
	return client
}

// ProvideMarketCache creates the day-fresh market data cache.
func ProvideMarketCache(
	svc cache.Service,
	cfg *config.Config,
	m repository.Metrics,
	l *applogger.Logger,
) repository.MarketCache {
	mc := internalrepo.NewMarketCache(svc, cfg.Cache.SeriesMaxAgeHrs)
	mc.SetMetrics(m)
	mc.SetLogger(l)
	return mc
}

// ProvideResultStore creates the ClickHouse result store and ensures
// its schema.
func ProvideResultStore(chClient *pkgch.Client, l *applogger.Logger) (repository.ResultStore, error) {
	store := internalrepo.NewCHResultStore(chClient)
	store.SetLogger(l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("result store init: %w", err)
	}
	return store, nil
}

// ProvideEventPublisher creates the Kafka scan event publisher, or a
// no-op when eventing is disabled.
func ProvideEventPublisher(cfg *config.Config, l *applogger.Logger) (repository.EventPublisher, error) {
	if !cfg.Kafka.Enabled {
		return internalrepo.NopEventPublisher{}, nil
	}

	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	pub := internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Topic)
	pub.SetLogger(l)
	return pub, nil
}

// ProvideLLMClient creates the chat completion client. Unconfigured
// credentials yield a client that reports itself unavailable.
func ProvideLLMClient(cfg *config.Config) *llm.Client {
	return llm.New(
		phttp.NewClient(phttp.WithTimeout(cfg.LLM.Timeout)),
		llm.Options{
			Endpoint:    cfg.LLM.Endpoint,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
		},
	)
}

// ProvideScanner creates the scan orchestrator use case.
func ProvideScanner(
	cfg *config.Config,
	source repository.MarketData,
	mcache repository.MarketCache,
	store repository.ResultStore,
	events repository.EventPublisher,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.Scanner {
	s := usecase.NewScanner(usecase.ScannerConfig{
		Workers:          cfg.Scanner.Workers,
		MinFetchInterval: cfg.Scanner.MinFetchInterval,
		FetchJitter:      cfg.Scanner.FetchJitter,
		LookbackDays:     cfg.Scanner.LookbackDays,
	}, source, mcache, store, events, m)
	s.SetLogger(l)
	return s
}

// ProvideStockService creates the stock detail / watchlist use case.
func ProvideStockService(
	cfg *config.Config,
	source repository.MarketData,
	mcache repository.MarketCache,
	store repository.ResultStore,
	l *applogger.Logger,
) *usecase.StockService {
	s := usecase.NewStockService(usecase.StockConfig{
		LookbackDays: cfg.Scanner.LookbackDays,
		MaxAgeHours:  cfg.Cache.SeriesMaxAgeHrs,
	}, source, mcache, store)
	s.SetLogger(l)
	return s
}

// ProvideReportService creates the AI report use case.
func ProvideReportService(store repository.ResultStore, client *llm.Client, l *applogger.Logger) *usecase.ReportService {
	s := usecase.NewReportService(store, client)
	s.SetLogger(l)
	return s
}

// responseCache picks the handler's short-TTL response cache backend:
// an in-process TTL map, or Redis when the shared cache is enabled.
func responseCache(cfg *config.Config) icache.BytesCache {
	if cfg.Cache.Redis.Enabled {
		return icache.NewRedisCache(icache.RedisConfig{
			Addr:     fmt.Sprintf("%s:%d", cfg.Cache.Redis.Host, cfg.Cache.Redis.Port),
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
	}
	return icache.NewTTLCache()
}

// ProvideScanHandler creates the HTTP handler.
func ProvideScanHandler(
	cfg *config.Config,
	l *applogger.Logger,
	scanner *usecase.Scanner,
	stocks *usecase.StockService,
	reports *usecase.ReportService,
	source repository.MarketData,
) *api.ScanHandler {
	h := api.NewScanHandler(l, scanner, stocks, reports, source)
	h.SetCache(responseCache(cfg))
	return h
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	handler *api.ScanHandler,
	store repository.ResultStore,
	events repository.EventPublisher,
	scanner *usecase.Scanner,
) *server.App {
	return server.New(cfg, l, handler, store, events, scanner)
}
