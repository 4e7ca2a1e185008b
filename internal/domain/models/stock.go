package models

// Sub-score caps for the composite score. The six dimensions always sum
// to at most 100.
const (
	MaxSqueezeScore    = 30
	MaxTrendScore      = 20
	MaxPopularityScore = 15
	MaxMomentumScore   = 15
	MaxPositionScore   = 10
	MaxVolumeScore     = 10
)

// StockResult is one qualifying symbol within a sector, built from the
// latest bar of its evaluated series.
type StockResult struct {
	Code string `json:"code"`
	Name string `json:"name"`

	Close       float64 `json:"close"`
	PctChange   float64 `json:"pct_change"`
	TurnoverPct float64 `json:"turnover"`
	MarketCap   float64 `json:"market_cap"`

	// Squeeze measurements.
	BBUpper      float64 `json:"bb_upper"`
	BBLower      float64 `json:"bb_lower"`
	BBWidthPct   float64 `json:"bb_width_pct"`
	WidthMAShort float64 `json:"width_ma_short"`
	WidthMALong  float64 `json:"width_ma_long"`
	SqueezeDays  int     `json:"squeeze_days"`
	SqueezeRatio float64 `json:"squeeze_ratio"` // shortMA/longMA * 100

	// Volume measurements.
	VolumeRatio    float64 `json:"volume_ratio"`
	VolumeUpStreak int     `json:"volume_up_streak"`
	IsVolumeUp     bool    `json:"is_volume_up"`
	IsPriceUp      bool    `json:"is_price_up"`
	IsVolumePriceUp bool   `json:"is_volume_price_up"`

	// Trend and momentum.
	MABullish     bool    `json:"ma_bullish"`
	MAFullBullish bool    `json:"ma_full_bullish"`
	AboveMA20     bool    `json:"above_ma20"`
	MA20Slope     float64 `json:"ma20_slope"`
	MA20GentleUp  bool    `json:"ma20_gentle_up"`
	AboveBBMiddle bool    `json:"above_bb_middle"`
	BBPositionPct float64 `json:"bb_position"` // 0=lower band, 100=upper band
	MACDGolden    bool    `json:"macd_golden"`
	MACDHistPositive bool `json:"macd_hist_positive"`
	RSI           float64 `json:"rsi"`
	RSINeutral    bool    `json:"rsi_neutral"`
	CMF           float64 `json:"cmf"`
	CMFBullish    bool    `json:"cmf_bullish"`
	ATRPercentile float64 `json:"atr_percentile"`
	LowVolatility bool    `json:"low_volatility"`

	// Sector context.
	IsLeader   bool `json:"is_leader"`
	LeaderRank int  `json:"leader_rank"`

	// Composite scoring.
	SqueezeScore    int    `json:"squeeze_score"`
	TrendScore      int    `json:"trend_score"`
	PopularityScore int    `json:"popularity_score"`
	MomentumScore   int    `json:"momentum_score"`
	PositionScore   int    `json:"position_score"`
	VolumeScore     int    `json:"volume_score"`
	Score           int    `json:"total_score"`
	Grade           string `json:"grade"`

	Tags []string `json:"tags"`
}

// GradeFor maps a composite score to its letter grade.
func GradeFor(score int) string {
	switch {
	case score >= 75:
		return "S"
	case score >= 60:
		return "A"
	case score >= 45:
		return "B"
	default:
		return "C"
	}
}
