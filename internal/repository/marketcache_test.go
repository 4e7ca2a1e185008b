package repository

import (
	"context"
	"testing"
	"time"

	"SqueezeScan/internal/domain/models"
	"SqueezeScan/pkg/cache"
)

func newTestMarketCache(t *testing.T) (*MarketCache, *time.Time) {
	t.Helper()
	mc := NewMarketCache(cache.NewMemoryCache(cache.WithMemoryMaxSize(100)), 4)
	clock := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return clock }
	return mc, &clock
}

func someBars() []models.Bar {
	return []models.Bar{
		{Date: "2026-08-27", Close: 10.5, Volume: 1200},
		{Date: "2026-08-28", Close: 10.8, Volume: 1500},
	}
}

func TestSeriesSameDayHit(t *testing.T) {
	mc, _ := newTestMarketCache(t)
	ctx := context.Background()

	mc.PutSeries(ctx, "600519", someBars())
	got, ok := mc.Series(ctx, "600519", 0)
	if !ok {
		t.Fatal("expected same-day hit")
	}
	if len(got) != 2 || got[1].Close != 10.8 {
		t.Fatalf("payload mangled: %+v", got)
	}
}

func TestSeriesYesterdayIsAbsent(t *testing.T) {
	mc, clock := newTestMarketCache(t)
	ctx := context.Background()

	mc.PutSeries(ctx, "600519", someBars())
	*clock = clock.Add(24 * time.Hour)

	if _, ok := mc.Series(ctx, "600519", 0); ok {
		t.Fatal("yesterday's entry must be treated as absent")
	}
}

func TestSeriesHourGraceCrossesMidnight(t *testing.T) {
	mc, clock := newTestMarketCache(t)
	ctx := context.Background()

	*clock = time.Date(2026, 8, 28, 23, 30, 0, 0, time.UTC)
	mc.PutSeries(ctx, "600519", someBars())

	*clock = time.Date(2026, 8, 29, 1, 0, 0, 0, time.UTC)
	if _, ok := mc.Series(ctx, "600519", 0); ok {
		t.Fatal("day-only read must miss after midnight")
	}
	if _, ok := mc.Series(ctx, "600519", 4); !ok {
		t.Fatal("90-minute-old entry must satisfy a 4 hour grace")
	}
	if _, ok := mc.Series(ctx, "600519", 1); ok {
		t.Fatal("90-minute-old entry must miss a 1 hour grace")
	}
}

func TestPutOverwrites(t *testing.T) {
	mc, _ := newTestMarketCache(t)
	ctx := context.Background()

	mc.PutSeries(ctx, "600519", someBars())
	mc.PutSeries(ctx, "600519", []models.Bar{{Date: "2026-08-28", Close: 99}})

	got, ok := mc.Series(ctx, "600519", 0)
	if !ok || len(got) != 1 || got[0].Close != 99 {
		t.Fatalf("last write must win, got %+v", got)
	}
}

func TestSeriesBatchSplitsHitsAndMisses(t *testing.T) {
	mc, _ := newTestMarketCache(t)
	ctx := context.Background()

	mc.PutSeries(ctx, "600519", someBars())
	mc.PutSeries(ctx, "000001", someBars())

	hits, missing := mc.SeriesBatch(ctx, []string{"600519", "300750", "000001", "688981"})
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if _, ok := hits["600519"]; !ok {
		t.Fatal("600519 missing from hits")
	}
	if len(missing) != 2 || missing[0] != "300750" || missing[1] != "688981" {
		t.Fatalf("miss list must preserve input order, got %v", missing)
	}
}

func TestSeriesBatchIgnoresStaleEntries(t *testing.T) {
	mc, clock := newTestMarketCache(t)
	ctx := context.Background()

	mc.PutSeries(ctx, "600519", someBars())
	*clock = clock.Add(24 * time.Hour)
	mc.PutSeries(ctx, "000001", someBars())

	hits, missing := mc.SeriesBatch(ctx, []string{"600519", "000001"})
	if len(hits) != 1 {
		t.Fatalf("expected only today's entry, got %v", hits)
	}
	if len(missing) != 1 || missing[0] != "600519" {
		t.Fatalf("stale entry must be in the miss list, got %v", missing)
	}
}

func TestConstituentsRoundTrip(t *testing.T) {
	mc, clock := newTestMarketCache(t)
	ctx := context.Background()

	rows := []models.ConstituentInfo{
		{Code: "600036", Name: "a", MarketCap: 900, IsLeader: true, LeaderRank: 1},
		{Code: "601328", Name: "b", MarketCap: 100},
	}
	mc.PutConstituents(ctx, "banking", rows)

	got, ok := mc.Constituents(ctx, "banking")
	if !ok || len(got) != 2 || !got[0].IsLeader {
		t.Fatalf("round trip lost data: %+v", got)
	}

	*clock = clock.Add(24 * time.Hour)
	if _, ok := mc.Constituents(ctx, "banking"); ok {
		t.Fatal("yesterday's constituents must be absent")
	}
}
