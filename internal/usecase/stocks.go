package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SqueezeScan/internal/domain/models"
	drepo "SqueezeScan/internal/domain/repository"
	"SqueezeScan/internal/indicator"
	applogger "SqueezeScan/pkg/logger"
)

// ErrInsufficientHistory is returned when a symbol has fewer bars than
// the indicator warm-up needs.
var ErrInsufficientHistory = errors.New("not enough daily bars for indicators")

// StockConfig tunes the single-symbol detail path.
type StockConfig struct {
	LookbackDays int
	MaxAgeHours  int // cache grace beyond same-day freshness
	MaxRows      int // chart rows returned
}

// StockService serves single-symbol chart payloads and the watchlist.
// Detail reads accept slightly stale cached series so browsing stays
// cheap between scans.
type StockService struct {
	cfg    StockConfig
	source drepo.MarketData
	cache  drepo.MarketCache
	store  drepo.ResultStore
	engine *indicator.Engine
	l      *applogger.Logger
	now    func() time.Time
}

func NewStockService(cfg StockConfig, source drepo.MarketData, cache drepo.MarketCache, store drepo.ResultStore) *StockService {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 120
	}
	if cfg.MaxAgeHours <= 0 {
		cfg.MaxAgeHours = 4
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 60
	}
	return &StockService{
		cfg:    cfg,
		source: source,
		cache:  cache,
		store:  store,
		engine: indicator.NewEngine(indicator.DefaultConfig()),
		now:    time.Now,
	}
}

// SetLogger injects a structured logger.
func (s *StockService) SetLogger(l *applogger.Logger) { s.l = l }

// Detail returns the evaluated chart series for one symbol, cache
// first with the configured hour grace.
func (s *StockService) Detail(ctx context.Context, code string) (*models.StockDetail, error) {
	bars, ok := s.cache.Series(ctx, code, s.cfg.MaxAgeHours)
	if !ok {
		var err error
		bars, err = s.source.DailyBars(ctx, code, s.cfg.LookbackDays)
		if err != nil {
			return nil, fmt.Errorf("fetch series %s: %w", code, err)
		}
		s.cache.PutSeries(ctx, code, bars)
	}
	if len(bars) < s.engine.MinBars() {
		return nil, ErrInsufficientHistory
	}
	return s.engine.Detail(code, bars, s.cfg.MaxRows), nil
}

func (s *StockService) Watchlist(ctx context.Context) ([]models.WatchlistEntry, error) {
	return s.store.Watchlist(ctx)
}

// AddWatchlist upserts an entry, stamping the add time.
func (s *StockService) AddWatchlist(ctx context.Context, e models.WatchlistEntry) error {
	if e.Code == "" {
		return errors.New("watchlist: code required")
	}
	if e.AddedAt.IsZero() {
		e.AddedAt = s.now()
	}
	return s.store.AddWatchlist(ctx, e)
}

func (s *StockService) RemoveWatchlist(ctx context.Context, code string) error {
	return s.store.RemoveWatchlist(ctx, code)
}
