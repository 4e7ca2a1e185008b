package repository

import (
	"context"

	"SqueezeScan/internal/domain/models"
)

// MarketData fetches rows from the external market-data provider. All
// calls are retried internally; errors surface only after exhaustion.
type MarketData interface {
	// HotSectors returns industry boards sorted descending by change%.
	HotSectors(ctx context.Context) ([]models.SectorInfo, error)
	// Constituents returns the members of one sector board.
	Constituents(ctx context.Context, sector models.SectorInfo) ([]models.ConstituentInfo, error)
	// DailyBars returns daily OHLCV rows ascending by date.
	DailyBars(ctx context.Context, code string, lookbackDays int) ([]models.Bar, error)
}

// MarketCache is the day-fresh read-through cache for constituent lists
// and per-symbol series. Entries from a prior day are treated as absent.
type MarketCache interface {
	Constituents(ctx context.Context, sector string) ([]models.ConstituentInfo, bool)
	PutConstituents(ctx context.Context, sector string, rows []models.ConstituentInfo)
	Series(ctx context.Context, code string, maxAgeHours int) ([]models.Bar, bool)
	PutSeries(ctx context.Context, code string, bars []models.Bar)
	// SeriesBatch splits codes into cached series and the remainder the
	// caller must fetch.
	SeriesBatch(ctx context.Context, codes []string) (map[string][]models.Bar, []string)
	// InvalidateExpired removes entries from prior days. Maintenance only;
	// read paths never serve stale entries regardless.
	InvalidateExpired(ctx context.Context) error
}

// ResultStore persists scan records, grouped sector results and the
// peripheral watchlist / AI report records.
type ResultStore interface {
	Init(ctx context.Context) error // ensure tables, health checks

	CreateScan(ctx context.Context, rec models.ScanRecord) error
	UpdateScan(ctx context.Context, rec models.ScanRecord) error
	SaveSectorResult(ctx context.Context, res models.SectorResult) error
	ScanDetail(ctx context.Context, scanID string) (*models.ScanDetail, error)
	LatestCompleted(ctx context.Context) (*models.ScanDetail, error)
	ScanHistory(ctx context.Context, limit int) ([]models.ScanSummary, error)
	DeleteScan(ctx context.Context, scanID string) error

	Watchlist(ctx context.Context) ([]models.WatchlistEntry, error)
	AddWatchlist(ctx context.Context, e models.WatchlistEntry) error
	RemoveWatchlist(ctx context.Context, code string) error

	SaveReport(ctx context.Context, r models.AIReport) error
	Reports(ctx context.Context, limit int) ([]models.AIReport, error)
	Report(ctx context.Context, id string) (*models.AIReport, error)
	DeleteReport(ctx context.Context, id string) error

	Close() error
}

// EventPublisher emits scan lifecycle events for downstream consumers.
// Implementations must be safe no-ops when eventing is disabled.
type EventPublisher interface {
	PublishScanEvent(ctx context.Context, event string, rec models.ScanRecord) error
	Close() error
}

// Metrics records operational measurements for the scan pipeline.
type Metrics interface {
	RecordScanStarted()
	RecordScanFinished(status string, seconds float64)
	RecordScanProgress(progress int)
	RecordFetchError(kind string)
	RecordCacheHit(kind string)
	RecordCacheMiss(kind string)
	RecordSymbolsScanned(n int)
	RecordLatency(op string, seconds float64)
}
