package repository

import (
	"context"
	"encoding/json"
	"time"

	"SqueezeScan/internal/domain/models"
	drepo "SqueezeScan/internal/domain/repository"
	"SqueezeScan/pkg/cache"
	applogger "SqueezeScan/pkg/logger"
	"SqueezeScan/pkg/util"
)

const (
	constituentsPrefix = "scan:sector"
	seriesPrefix       = "scan:series"
)

type constituentsEntry struct {
	CacheDate string                   `json:"cache_date"`
	CachedAt  time.Time                `json:"cached_at"`
	Rows      []models.ConstituentInfo `json:"rows"`
}

type seriesEntry struct {
	CacheDate string       `json:"cache_date"`
	CachedAt  time.Time    `json:"cached_at"`
	Bars      []models.Bar `json:"bars"`
}

// MarketCache is the day-fresh envelope over the cache backend. Scan
// reads accept only same-day entries; the detail path may additionally
// accept entries younger than a caller-provided hour limit. Physical
// cleanup is delegated to the backend TTL, which always outlives the
// logical freshness window.
type MarketCache struct {
	cache   cache.Service
	maxAge  time.Duration // detail-path grace, also the TTL slack
	now     func() time.Time
	metrics drepo.Metrics
	l       *applogger.Logger
}

func NewMarketCache(svc cache.Service, seriesMaxAgeHours int) *MarketCache {
	maxAge := time.Duration(seriesMaxAgeHours) * time.Hour
	if maxAge <= 0 {
		maxAge = 4 * time.Hour
	}
	return &MarketCache{cache: svc, maxAge: maxAge, now: time.Now}
}

// SetMetrics injects the hit/miss recorder.
func (c *MarketCache) SetMetrics(m drepo.Metrics) { c.metrics = m }

// SetLogger injects a structured logger.
func (c *MarketCache) SetLogger(l *applogger.Logger) { c.l = l }

func (c *MarketCache) Constituents(ctx context.Context, sector string) ([]models.ConstituentInfo, bool) {
	var e constituentsEntry
	key := cache.GenerateKey(constituentsPrefix, sector)
	if !c.getJSON(ctx, key, &e) || e.CacheDate != c.today() {
		c.recordMiss("constituents")
		return nil, false
	}
	c.recordHit("constituents")
	return e.Rows, true
}

func (c *MarketCache) PutConstituents(ctx context.Context, sector string, rows []models.ConstituentInfo) {
	now := c.now()
	e := constituentsEntry{CacheDate: util.DayKey(now), CachedAt: now, Rows: rows}
	c.putJSON(ctx, cache.GenerateKey(constituentsPrefix, sector), e, now)
}

// Series returns a cached series. maxAgeHours extends same-day
// freshness for read paths outside a scan; pass 0 for day-only.
func (c *MarketCache) Series(ctx context.Context, code string, maxAgeHours int) ([]models.Bar, bool) {
	var e seriesEntry
	key := cache.GenerateKey(seriesPrefix, code)
	if !c.getJSON(ctx, key, &e) {
		c.recordMiss("series")
		return nil, false
	}
	fresh := e.CacheDate == c.today()
	if !fresh {
		fresh = util.WithinHours(c.now(), e.CachedAt, maxAgeHours)
	}
	if !fresh {
		c.recordMiss("series")
		return nil, false
	}
	c.recordHit("series")
	return e.Bars, true
}

func (c *MarketCache) PutSeries(ctx context.Context, code string, bars []models.Bar) {
	now := c.now()
	e := seriesEntry{CacheDate: util.DayKey(now), CachedAt: now, Bars: bars}
	c.putJSON(ctx, cache.GenerateKey(seriesPrefix, code), e, now)
}

// SeriesBatch splits codes into same-day cached series and the
// remainder, preserving input order in the miss list.
func (c *MarketCache) SeriesBatch(ctx context.Context, codes []string) (map[string][]models.Bar, []string) {
	keys := make([]string, len(codes))
	for i, code := range codes {
		keys[i] = cache.GenerateKey(seriesPrefix, code)
	}

	entries, err := cache.MGetTyped[seriesEntry](ctx, c.cache, keys...)
	if err != nil {
		if c.l != nil {
			c.l.Warn("cache batch read failed", applogger.Error(err))
		}
		entries = nil
	}

	today := c.today()
	hits := make(map[string][]models.Bar)
	var missing []string
	for i, code := range codes {
		if e, ok := entries[keys[i]]; ok && e.CacheDate == today {
			hits[code] = e.Bars
			c.recordHit("series")
			continue
		}
		missing = append(missing, code)
		c.recordMiss("series")
	}
	return hits, missing
}

// InvalidateExpired is satisfied by the backend TTL: entries are
// written with an expiry past their logical freshness window, so stale
// entries vanish on their own and read paths never serve them anyway.
func (c *MarketCache) InvalidateExpired(ctx context.Context) error {
	return nil
}

// Entries are stored as JSON strings so every backend round-trips them
// identically.
func (c *MarketCache) putJSON(ctx context.Context, key string, v any, now time.Time) {
	b, err := json.Marshal(v)
	if err == nil {
		err = c.cache.Set(ctx, key, string(b), c.ttl(now))
	}
	if err != nil && c.l != nil {
		c.l.Warn("cache write failed", applogger.String("key", key), applogger.Error(err))
	}
}

func (c *MarketCache) getJSON(ctx context.Context, key string, dest any) bool {
	var raw string
	if err := c.cache.Get(ctx, key, &raw); err != nil {
		return false
	}
	return json.Unmarshal([]byte(raw), dest) == nil
}

func (c *MarketCache) today() string {
	return util.DayKey(c.now())
}

// ttl keeps the entry through end of day plus the detail-path grace.
func (c *MarketCache) ttl(now time.Time) time.Duration {
	return util.UntilNextDay(now) + c.maxAge
}

func (c *MarketCache) recordHit(kind string) {
	if c.metrics != nil {
		c.metrics.RecordCacheHit(kind)
	}
}

func (c *MarketCache) recordMiss(kind string) {
	if c.metrics != nil {
		c.metrics.RecordCacheMiss(kind)
	}
}
