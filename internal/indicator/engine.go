package indicator

import (
	"fmt"
	"math"

	"SqueezeScan/internal/domain/models"
)

// Config holds the tunable windows of the squeeze pipeline. Zero values
// are replaced by the defaults the strategy was calibrated with.
type Config struct {
	Period          int     // Bollinger window
	BandK           float64 // band width in standard deviations
	SqueezeShort    int     // band-width short MA
	SqueezeLong     int     // band-width long MA
	VolumeWindow    int
	VolumeThreshold float64
	SlopeWindow     int
	MACDFast        int
	MACDSlow        int
	MACDSignal      int
	RSIPeriod       int
	CMFPeriod       int
	ATRPeriod       int
	ATRLookback     int
	ScoredStreakCap int // squeeze days counted toward the score
}

func DefaultConfig() Config {
	return Config{
		Period:          20,
		BandK:           2.0,
		SqueezeShort:    5,
		SqueezeLong:     10,
		VolumeWindow:    5,
		VolumeThreshold: 1.2,
		SlopeWindow:     5,
		MACDFast:        12,
		MACDSlow:        26,
		MACDSignal:      9,
		RSIPeriod:       14,
		CMFPeriod:       20,
		ATRPeriod:       14,
		ATRLookback:     60,
		ScoredStreakCap: 5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Period <= 0 {
		c.Period = d.Period
	}
	if c.BandK <= 0 {
		c.BandK = d.BandK
	}
	if c.SqueezeShort <= 0 {
		c.SqueezeShort = d.SqueezeShort
	}
	if c.SqueezeLong <= 0 {
		c.SqueezeLong = d.SqueezeLong
	}
	if c.VolumeWindow <= 0 {
		c.VolumeWindow = d.VolumeWindow
	}
	if c.VolumeThreshold <= 0 {
		c.VolumeThreshold = d.VolumeThreshold
	}
	if c.SlopeWindow <= 0 {
		c.SlopeWindow = d.SlopeWindow
	}
	if c.MACDFast <= 0 {
		c.MACDFast = d.MACDFast
	}
	if c.MACDSlow <= 0 {
		c.MACDSlow = d.MACDSlow
	}
	if c.MACDSignal <= 0 {
		c.MACDSignal = d.MACDSignal
	}
	if c.RSIPeriod <= 0 {
		c.RSIPeriod = d.RSIPeriod
	}
	if c.CMFPeriod <= 0 {
		c.CMFPeriod = d.CMFPeriod
	}
	if c.ATRPeriod <= 0 {
		c.ATRPeriod = d.ATRPeriod
	}
	if c.ATRLookback <= 0 {
		c.ATRLookback = d.ATRLookback
	}
	if c.ScoredStreakCap <= 0 {
		c.ScoredStreakCap = d.ScoredStreakCap
	}
	return c
}

// Engine computes the squeeze pipeline over ordered daily bars. It is
// stateless and safe for concurrent use.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg.withDefaults()}
}

// MinBars is the shortest series the engine will evaluate.
func (e *Engine) MinBars() int {
	return e.cfg.Period + e.cfg.SqueezeLong
}

// Evaluate runs all stages and extracts the latest bar. Returns false
// when the series is too short or the trailing squeeze streak is under
// minDays. Sector context (leader flags, market cap) is left for the
// caller to fill in.
func (e *Engine) Evaluate(code, name string, bars []models.Bar, minDays int) (*models.StockResult, bool) {
	if len(bars) < e.MinBars() {
		return nil, false
	}

	f := e.compute(bars)
	i := len(bars) - 1
	if f.squeezeStreak[i] < minDays {
		return nil, false
	}

	latest := bars[i]
	r := &models.StockResult{
		Code: code,
		Name: name,

		Close:       round(latest.Close, 2),
		PctChange:   round(latest.PctChange, 2),
		TurnoverPct: round(latest.TurnoverPct, 2),

		BBUpper:      round(f.bbUpper[i], 2),
		BBLower:      round(f.bbLower[i], 2),
		BBWidthPct:   round(f.bbWidthPct[i], 2),
		WidthMAShort: round(f.widthMAShort[i], 2),
		WidthMALong:  round(f.widthMALong[i], 2),
		SqueezeDays:  f.squeezeStreak[i],
		SqueezeRatio: round(f.widthMAShort[i]/f.widthMALong[i]*100, 1),

		VolumeRatio:     orZero(round(f.volumeRatio[i], 2)),
		VolumeUpStreak:  f.volumeUpStreak[i],
		IsVolumeUp:      f.isVolumeUp[i],
		IsPriceUp:       f.isPriceUp[i],
		IsVolumePriceUp: f.isVolumePriceUp[i],

		MABullish:        f.maBullish[i],
		MAFullBullish:    f.maFullBullish[i],
		AboveMA20:        f.aboveMA20[i],
		MA20Slope:        orZero(round(f.ma20Slope[i], 4)),
		MA20GentleUp:     f.ma20GentleUp[i],
		AboveBBMiddle:    f.aboveBBMiddle[i],
		BBPositionPct:    orDefault(round(f.bbPosition[i]*100, 1), 50),
		MACDGolden:       f.macdGolden[i],
		MACDHistPositive: f.macdHistPositive[i],
		RSI:              orDefault(round(f.rsi[i], 1), 50),
		RSINeutral:       f.rsiNeutral[i],
		CMF:              orZero(round(f.cmf[i], 3)),
		CMFBullish:       f.cmfBullish[i],
		ATRPercentile:    orDefault(round(f.atrPercentile[i], 1), 50),
		LowVolatility:    f.lowVolatility[i],

		SqueezeScore:    f.squeezeScore[i],
		TrendScore:      f.trendScore[i],
		PopularityScore: f.popularityScore[i],
		MomentumScore:   f.momentumScore[i],
		PositionScore:   f.positionScore[i],
		VolumeScore:     f.volumeScore[i],
		Score:           f.totalScore[i],
	}
	r.Grade = models.GradeFor(r.Score)
	return r, true
}

// Detail computes the band columns for charting, dropping the indicator
// warm-up rows and trimming to the most recent maxRows bars.
func (e *Engine) Detail(code string, bars []models.Bar, maxRows int) *models.StockDetail {
	f := newFrame(bars)
	f.computeBollinger(e.cfg.Period, e.cfg.BandK)
	f.computeSqueeze(e.cfg.SqueezeShort, e.cfg.SqueezeLong)

	start := 0
	for start < len(bars) && math.IsNaN(f.widthMALong[start]) {
		start++
	}
	if over := len(bars) - start - maxRows; maxRows > 0 && over > 0 {
		start += over
	}

	d := &models.StockDetail{Code: code}
	for i := start; i < len(bars); i++ {
		d.Dates = append(d.Dates, bars[i].Date)
		d.Bars = append(d.Bars, bars[i])
		d.BBUpper = append(d.BBUpper, round(f.bbUpper[i], 2))
		d.BBMiddle = append(d.BBMiddle, round(f.bbMiddle[i], 2))
		d.BBLower = append(d.BBLower, round(f.bbLower[i], 2))
		d.WidthPct = append(d.WidthPct, round(f.bbWidthPct[i], 2))
		d.WidthMAShort = append(d.WidthMAShort, round(f.widthMAShort[i], 2))
		d.WidthMALong = append(d.WidthMALong, round(f.widthMALong[i], 2))
	}
	return d
}

func (e *Engine) compute(bars []models.Bar) *frame {
	f := newFrame(bars)
	f.computeBollinger(e.cfg.Period, e.cfg.BandK)
	f.computeSqueeze(e.cfg.SqueezeShort, e.cfg.SqueezeLong)
	f.computeVolume(e.cfg.VolumeWindow, e.cfg.VolumeThreshold)
	f.computeTrend(e.cfg)
	f.computeScores(e.cfg.ScoredStreakCap)
	return f
}

// Tags derives the display labels from a scored result plus its sector
// context. Order is stable: grade, leader, trend, MACD, volume,
// volatility, popularity, vanguard.
func Tags(r *models.StockResult) []string {
	var tags []string

	switch r.Grade {
	case "S":
		tags = append(tags, "S-tier")
	case "A":
		tags = append(tags, "A-tier")
	}

	if r.IsLeader {
		tags = append(tags, fmt.Sprintf("leader #%d", r.LeaderRank))
	}

	if r.MAFullBullish {
		tags = append(tags, "full bullish stack")
	} else if r.MABullish {
		tags = append(tags, "short-term bullish")
	}

	if r.MACDGolden && r.MACDHistPositive {
		tags = append(tags, "MACD strong")
	} else if r.MACDGolden {
		tags = append(tags, "MACD golden cross")
	}

	if r.IsVolumePriceUp {
		tags = append(tags, "volume-price rise")
	} else if r.IsVolumeUp {
		tags = append(tags, "volume surge")
	}

	if r.LowVolatility {
		tags = append(tags, "low-vol coiling")
	}

	switch {
	case r.TurnoverPct >= 3 && r.TurnoverPct <= 10:
		tags = append(tags, "high interest")
	case r.TurnoverPct > 10:
		tags = append(tags, "frenzied")
	case r.TurnoverPct >= 1:
		tags = append(tags, "on watch")
	}

	if r.PctChange >= 5 {
		tags = append(tags, "vanguard")
	}

	return tags
}

func orZero(v float64) float64 {
	return orDefault(v, 0)
}

func orDefault(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}
