package indicator

import (
	"fmt"
	"math"
	"testing"

	"SqueezeScan/internal/domain/models"
)

// volatileBars oscillates around 12 with a geometrically decaying
// amplitude, so the band width contracts for the whole series and the
// trailing bars are always in a squeeze.
func volatileBars(n int) []models.Bar {
	bars := make([]models.Bar, n)
	amp := 1.0
	for i := range bars {
		close := 12 + amp
		if i%2 == 1 {
			close = 12 - amp
		}
		amp *= 0.97
		bars[i] = models.Bar{
			Date:        fmt.Sprintf("2026-01-%02d", i%28+1),
			Open:        close - 0.1,
			High:        close + 0.3,
			Low:         close - 0.3,
			Close:       close,
			Volume:      1000 + float64(i)*10,
			TurnoverPct: 5,
		}
	}
	return bars
}

func flatBars(n int) []models.Bar {
	bars := make([]models.Bar, n)
	for i := range bars {
		bars[i] = models.Bar{
			Date: fmt.Sprintf("2026-02-%02d", i%28+1), Open: 10, High: 10,
			Low: 10, Close: 10, Volume: 1000, TurnoverPct: 2,
		}
	}
	return bars
}

func TestEvaluateTooShortSeriesIsSkipped(t *testing.T) {
	e := NewEngine(DefaultConfig())
	if _, ok := e.Evaluate("600000", "test", volatileBars(e.MinBars()-1), 1); ok {
		t.Fatal("series under the minimum length must be skipped")
	}
}

func TestEvaluateFlatSeriesNeverSqueezes(t *testing.T) {
	// Constant closes give zero band width throughout, so the short MA
	// is never strictly below the long MA.
	e := NewEngine(DefaultConfig())
	if r, ok := e.Evaluate("600000", "test", flatBars(80), 1); ok {
		t.Fatalf("flat series must not qualify, got streak %d", r.SqueezeDays)
	}
}

func TestEvaluateContractionQualifies(t *testing.T) {
	e := NewEngine(DefaultConfig())
	r, ok := e.Evaluate("600519", "test", volatileBars(90), 3)
	if !ok {
		t.Fatal("contracting series should qualify with minDays=3")
	}
	if r.SqueezeDays < 3 {
		t.Fatalf("qualifying result must carry streak >= 3, got %d", r.SqueezeDays)
	}
	if r.WidthMAShort >= r.WidthMALong {
		t.Fatalf("squeeze requires short MA %v < long MA %v", r.WidthMAShort, r.WidthMALong)
	}
	if r.SqueezeRatio <= 0 || r.SqueezeRatio >= 100 {
		t.Fatalf("squeeze ratio out of range: %v", r.SqueezeRatio)
	}
}

func TestStreakIsSequential(t *testing.T) {
	bars := volatileBars(90)
	f := newFrame(bars)
	cfg := DefaultConfig()
	f.computeBollinger(cfg.Period, cfg.BandK)
	f.computeSqueeze(cfg.SqueezeShort, cfg.SqueezeLong)

	for i := 1; i < len(bars); i++ {
		if f.squeezing[i] {
			if f.squeezeStreak[i] != f.squeezeStreak[i-1]+1 {
				t.Fatalf("bar %d: squeezing but streak %d != prev+1 (%d)",
					i, f.squeezeStreak[i], f.squeezeStreak[i-1]+1)
			}
		} else if f.squeezeStreak[i] != 0 {
			t.Fatalf("bar %d: not squeezing but streak %d != 0", i, f.squeezeStreak[i])
		}
	}
}

func TestScoresWithinCapsAndSumClamped(t *testing.T) {
	e := NewEngine(DefaultConfig())
	f := e.compute(volatileBars(90))

	for i := range f.totalScore {
		checks := []struct {
			name string
			v    int
			max  int
		}{
			{"squeeze", f.squeezeScore[i], models.MaxSqueezeScore},
			{"trend", f.trendScore[i], models.MaxTrendScore},
			{"popularity", f.popularityScore[i], models.MaxPopularityScore},
			{"momentum", f.momentumScore[i], models.MaxMomentumScore},
			{"position", f.positionScore[i], models.MaxPositionScore},
			{"volume", f.volumeScore[i], models.MaxVolumeScore},
		}
		sum := 0
		for _, c := range checks {
			if c.v < 0 || c.v > c.max {
				t.Fatalf("bar %d: %s score %d outside [0,%d]", i, c.name, c.v, c.max)
			}
			sum += c.v
		}
		want := clampInt(sum, 0, 100)
		if f.totalScore[i] != want {
			t.Fatalf("bar %d: total %d != clamped sum %d", i, f.totalScore[i], want)
		}
	}
}

func TestPopularityTiers(t *testing.T) {
	e := NewEngine(DefaultConfig())
	cases := []struct {
		turnover float64
		want     int
	}{
		{5, 15},
		{3, 15},
		{10, 15},
		{2, 10},
		{14, 10},
		{1, 5},
		{19, 5},
		{0.5, 0},
		{25, 0},
	}
	for _, c := range cases {
		bars := volatileBars(90)
		for i := range bars {
			bars[i].TurnoverPct = c.turnover
		}
		f := e.compute(bars)
		last := len(bars) - 1
		if f.popularityScore[last] != c.want {
			t.Errorf("turnover %.1f: expected %d, got %d", c.turnover, c.want, f.popularityScore[last])
		}
	}
}

func TestEvaluateNaNFallbacksOnShortHistory(t *testing.T) {
	// Exactly the minimum length leaves the 60-bar ATR lookback and the
	// MA60 undefined; the result must fall back instead of carrying NaN.
	e := NewEngine(DefaultConfig())
	r, ok := e.Evaluate("000001", "test", volatileBars(e.MinBars()), 1)
	if !ok {
		t.Skip("series did not end in a squeeze at minimum length")
	}
	if math.IsNaN(r.ATRPercentile) || r.ATRPercentile != 50 {
		t.Errorf("expected ATR percentile fallback 50, got %v", r.ATRPercentile)
	}
	if r.MAFullBullish {
		t.Error("full bullish stack must be false without 60 bars")
	}
	if r.LowVolatility {
		t.Error("low volatility must be false without the full lookback")
	}
}

func TestCMFBoundedAndConsistent(t *testing.T) {
	e := NewEngine(DefaultConfig())
	r, ok := e.Evaluate("000001", "test", volatileBars(80), 1)
	if !ok {
		t.Fatal("expected trailing squeeze on contracting series")
	}
	if r.CMF < -1 || r.CMF > 1 {
		t.Errorf("CMF must stay within [-1,1], got %v", r.CMF)
	}
	if r.CMFBullish && r.CMF < 0 {
		t.Errorf("bullish flag with negative CMF %v", r.CMF)
	}
	if !r.CMFBullish && r.CMF > 0.001 {
		t.Errorf("positive CMF %v without bullish flag", r.CMF)
	}
}

func TestTagsOrderingAndContent(t *testing.T) {
	r := &models.StockResult{
		Grade:            "S",
		IsLeader:         true,
		LeaderRank:       2,
		MABullish:        true,
		MAFullBullish:    true,
		MACDGolden:       true,
		MACDHistPositive: true,
		IsVolumeUp:       true,
		IsVolumePriceUp:  true,
		LowVolatility:    true,
		TurnoverPct:      6,
		PctChange:        6.2,
	}
	got := Tags(r)
	want := []string{
		"S-tier", "leader #2", "full bullish stack", "MACD strong",
		"volume-price rise", "low-vol coiling", "high interest", "vanguard",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d tags, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tag %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestTagsFallbackVariants(t *testing.T) {
	r := &models.StockResult{
		Grade:      "A",
		MABullish:  true,
		MACDGolden: true,
		IsVolumeUp: true,
	}
	got := Tags(r)
	want := []string{"A-tier", "short-term bullish", "MACD golden cross", "volume surge"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tag %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestDetailDropsWarmupRows(t *testing.T) {
	e := NewEngine(DefaultConfig())
	bars := volatileBars(90)
	d := e.Detail("600519", bars, 0)

	// The long width MA becomes defined period+long-2 rows in.
	warmup := DefaultConfig().Period + DefaultConfig().SqueezeLong - 2
	if len(d.Bars) != len(bars)-warmup {
		t.Fatalf("expected %d rows after warm-up, got %d", len(bars)-warmup, len(d.Bars))
	}
	for i, v := range d.WidthMALong {
		if math.IsNaN(v) {
			t.Fatalf("row %d: warm-up NaN leaked into detail", i)
		}
	}
	if len(d.Dates) != len(d.BBUpper) || len(d.Dates) != len(d.Bars) {
		t.Fatal("detail columns must stay parallel")
	}
}

func TestDetailTrimsToMaxRows(t *testing.T) {
	e := NewEngine(DefaultConfig())
	bars := volatileBars(90)
	d := e.Detail("600519", bars, 20)
	if len(d.Bars) != 20 {
		t.Fatalf("expected 20 rows, got %d", len(d.Bars))
	}
	if d.Dates[len(d.Dates)-1] != bars[len(bars)-1].Date {
		t.Fatal("detail must end at the latest bar")
	}
}
