package indicator

import (
	"math"

	"SqueezeScan/internal/domain/models"
)

// frame holds the input series and every derived column as parallel
// slices. Stages append columns in a fixed order; each stage only reads
// columns produced earlier.
type frame struct {
	bars []models.Bar

	closes  []float64
	highs   []float64
	lows    []float64
	volumes []float64

	bbMiddle   []float64
	bbUpper    []float64
	bbLower    []float64
	bbWidthPct []float64

	widthMAShort  []float64
	widthMALong   []float64
	squeezing     []bool
	squeezeStreak []int

	volumeRatio     []float64
	isVolumeUp      []bool
	isPriceUp       []bool
	isVolumePriceUp []bool
	volumeUpStreak  []int

	ma5, ma10, ma20, ma60 []float64
	maBullish             []bool
	maFullBullish         []bool
	aboveMA20             []bool
	ma20Slope             []float64
	ma20GentleUp          []bool

	aboveBBMiddle []bool
	bbPosition    []float64

	macdDIF          []float64
	macdDEA          []float64
	macdHist         []float64
	macdGolden       []bool
	macdHistPositive []bool
	macdConverging   []bool

	rsi        []float64
	rsiNeutral []bool

	cmf        []float64
	cmfBullish []bool

	atrPercentile []float64
	lowVolatility []bool

	squeezeScore    []int
	trendScore      []int
	popularityScore []int
	momentumScore   []int
	positionScore   []int
	volumeScore     []int
	totalScore      []int
}

func newFrame(bars []models.Bar) *frame {
	n := len(bars)
	f := &frame{
		bars:    bars,
		closes:  make([]float64, n),
		highs:   make([]float64, n),
		lows:    make([]float64, n),
		volumes: make([]float64, n),
	}
	for i, b := range bars {
		f.closes[i] = b.Close
		f.highs[i] = b.High
		f.lows[i] = b.Low
		f.volumes[i] = b.Volume
	}
	return f
}

func (f *frame) computeBollinger(period int, k float64) {
	n := len(f.closes)
	f.bbMiddle = rollingMean(f.closes, period)
	std := rollingStd(f.closes, period)
	f.bbUpper = make([]float64, n)
	f.bbLower = make([]float64, n)
	f.bbWidthPct = make([]float64, n)
	for i := 0; i < n; i++ {
		f.bbUpper[i] = f.bbMiddle[i] + k*std[i]
		f.bbLower[i] = f.bbMiddle[i] - k*std[i]
		f.bbWidthPct[i] = (f.bbUpper[i] - f.bbLower[i]) / f.closes[i] * 100
	}
}

func (f *frame) computeSqueeze(short, long int) {
	n := len(f.closes)
	f.widthMAShort = rollingMean(f.bbWidthPct, short)
	f.widthMALong = rollingMean(f.bbWidthPct, long)
	f.squeezing = make([]bool, n)
	f.squeezeStreak = make([]int, n)
	streak := 0
	for i := 0; i < n; i++ {
		// NaN comparisons are false, so warm-up rows never squeeze.
		f.squeezing[i] = f.widthMAShort[i] < f.widthMALong[i]
		if f.squeezing[i] {
			streak++
		} else {
			streak = 0
		}
		f.squeezeStreak[i] = streak
	}
}

func (f *frame) computeVolume(window int, threshold float64) {
	n := len(f.closes)
	volumeMA := rollingMean(f.volumes, window)
	f.volumeRatio = make([]float64, n)
	f.isVolumeUp = make([]bool, n)
	f.isPriceUp = make([]bool, n)
	f.isVolumePriceUp = make([]bool, n)
	f.volumeUpStreak = make([]int, n)
	streak := 0
	for i := 0; i < n; i++ {
		f.volumeRatio[i] = f.volumes[i] / volumeMA[i]
		f.isVolumeUp[i] = f.volumeRatio[i] > threshold
		f.isPriceUp[i] = i > 0 && f.closes[i] > f.closes[i-1]
		f.isVolumePriceUp[i] = f.isVolumeUp[i] && f.isPriceUp[i]
		if f.isVolumeUp[i] {
			streak++
		} else {
			streak = 0
		}
		f.volumeUpStreak[i] = streak
	}
}

func (f *frame) computeTrend(cfg Config) {
	n := len(f.closes)

	f.ma5 = rollingMean(f.closes, 5)
	f.ma10 = rollingMean(f.closes, 10)
	f.ma20 = rollingMean(f.closes, 20)
	f.ma60 = rollingMean(f.closes, 60)
	f.maBullish = make([]bool, n)
	f.maFullBullish = make([]bool, n)
	f.aboveMA20 = make([]bool, n)
	f.ma20Slope = nans(n)
	f.ma20GentleUp = make([]bool, n)
	f.aboveBBMiddle = make([]bool, n)
	f.bbPosition = make([]float64, n)
	for i := 0; i < n; i++ {
		f.maBullish[i] = f.ma5[i] > f.ma10[i] && f.ma10[i] > f.ma20[i]
		f.maFullBullish[i] = f.maBullish[i] && f.ma20[i] > f.ma60[i]
		f.aboveMA20[i] = f.closes[i] > f.ma20[i]
		if i >= cfg.SlopeWindow {
			prev := f.ma20[i-cfg.SlopeWindow]
			f.ma20Slope[i] = (f.ma20[i] - prev) / prev / float64(cfg.SlopeWindow) * 100
		}
		f.ma20GentleUp[i] = f.ma20Slope[i] > 0 && f.ma20Slope[i] < 0.05
		f.aboveBBMiddle[i] = f.closes[i] > f.bbMiddle[i]
		f.bbPosition[i] = (f.closes[i] - f.bbLower[i]) / (f.bbUpper[i] - f.bbLower[i])
	}

	fast := ema(f.closes, cfg.MACDFast)
	slow := ema(f.closes, cfg.MACDSlow)
	f.macdDIF = make([]float64, n)
	for i := 0; i < n; i++ {
		f.macdDIF[i] = fast[i] - slow[i]
	}
	f.macdDEA = ema(f.macdDIF, cfg.MACDSignal)
	f.macdHist = make([]float64, n)
	f.macdGolden = make([]bool, n)
	f.macdHistPositive = make([]bool, n)
	f.macdConverging = make([]bool, n)
	for i := 0; i < n; i++ {
		f.macdHist[i] = (f.macdDIF[i] - f.macdDEA[i]) * 2
		f.macdGolden[i] = f.macdDIF[i] > f.macdDEA[i]
		f.macdHistPositive[i] = f.macdHist[i] > 0
		if i > 0 {
			gap := f.macdDIF[i] - f.macdDEA[i]
			prevGap := f.macdDIF[i-1] - f.macdDEA[i-1]
			f.macdConverging[i] = f.macdDIF[i] < f.macdDEA[i] && gap > prevGap
		}
	}

	f.computeRSI(cfg.RSIPeriod)
	f.computeCMF(cfg.CMFPeriod)
	f.computeATR(cfg.ATRPeriod, cfg.ATRLookback)
}

// computeCMF derives Chaikin Money Flow: the money-flow-volume sum over
// the window divided by the volume sum. Flat bars (high == low)
// contribute zero flow.
func (f *frame) computeCMF(period int) {
	n := len(f.closes)
	mfv := make([]float64, n)
	for i := 0; i < n; i++ {
		span := f.highs[i] - f.lows[i]
		if span > 0 {
			mult := ((f.closes[i] - f.lows[i]) - (f.highs[i] - f.closes[i])) / span
			mfv[i] = mult * f.volumes[i]
		}
	}
	flowMA := rollingMean(mfv, period)
	volMA := rollingMean(f.volumes, period)
	f.cmf = make([]float64, n)
	f.cmfBullish = make([]bool, n)
	for i := 0; i < n; i++ {
		f.cmf[i] = flowMA[i] / volMA[i]
		f.cmfBullish[i] = f.cmf[i] > 0
	}
}

func (f *frame) computeRSI(period int) {
	n := len(f.closes)
	gains := nans(n)
	losses := nans(n)
	for i := 1; i < n; i++ {
		delta := f.closes[i] - f.closes[i-1]
		if delta > 0 {
			gains[i], losses[i] = delta, 0
		} else {
			gains[i], losses[i] = 0, -delta
		}
	}
	avgGain := rollingMean(gains, period)
	avgLoss := rollingMean(losses, period)
	f.rsi = make([]float64, n)
	f.rsiNeutral = make([]bool, n)
	for i := 0; i < n; i++ {
		rs := avgGain[i] / avgLoss[i]
		f.rsi[i] = 100 - 100/(1+rs)
		f.rsiNeutral[i] = f.rsi[i] >= 40 && f.rsi[i] <= 60
	}
}

func (f *frame) computeATR(period, lookback int) {
	n := len(f.closes)
	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		hl := f.highs[i] - f.lows[i]
		if i == 0 {
			tr[i] = hl
			continue
		}
		hc := math.Abs(f.highs[i] - f.closes[i-1])
		lc := math.Abs(f.lows[i] - f.closes[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	atr := rollingMean(tr, period)
	atrPct := make([]float64, n)
	for i := 0; i < n; i++ {
		atrPct[i] = atr[i] / f.closes[i] * 100
	}
	f.atrPercentile = percentileRank(atrPct, lookback)
	f.lowVolatility = make([]bool, n)
	for i := 0; i < n; i++ {
		f.lowVolatility[i] = f.atrPercentile[i] < 30
	}
}

func (f *frame) computeScores(maxStreakDays int) {
	n := len(f.closes)
	f.squeezeScore = make([]int, n)
	f.trendScore = make([]int, n)
	f.popularityScore = make([]int, n)
	f.momentumScore = make([]int, n)
	f.positionScore = make([]int, n)
	f.volumeScore = make([]int, n)
	f.totalScore = make([]int, n)

	for i := 0; i < n; i++ {
		sq := clampInt(f.squeezeStreak[i], 0, maxStreakDays) * 3
		ratio := f.widthMAShort[i] / f.widthMALong[i]
		switch {
		case ratio < 0.8:
			sq += 10
		case ratio < 0.9:
			sq += 7
		case ratio < 0.95:
			sq += 4
		}
		if f.lowVolatility[i] {
			sq += 5
		}
		f.squeezeScore[i] = clampInt(sq, 0, models.MaxSqueezeScore)

		tr := 0
		if f.maBullish[i] {
			tr += 10
		}
		if f.maFullBullish[i] {
			tr += 4
		}
		if f.aboveMA20[i] {
			tr += 6
		}
		f.trendScore[i] = clampInt(tr, 0, models.MaxTrendScore)

		turnover := f.bars[i].TurnoverPct
		pop := 0
		switch {
		case turnover >= 3 && turnover <= 10:
			pop = 15
		case turnover >= 2 && turnover <= 15:
			pop = 10
		case turnover >= 1 && turnover <= 20:
			pop = 5
		}
		f.popularityScore[i] = clampInt(pop, 0, models.MaxPopularityScore)

		mo := 0
		if f.macdGolden[i] {
			mo += 6
		}
		if f.macdHistPositive[i] {
			mo += 3
		}
		if f.macdConverging[i] {
			mo += 3
		}
		if f.rsiNeutral[i] {
			mo += 3
		}
		f.momentumScore[i] = clampInt(mo, 0, models.MaxMomentumScore)

		pos := 0
		if f.aboveBBMiddle[i] {
			pos += 5
		}
		bp := f.bbPosition[i]
		switch {
		case bp >= 0.4 && bp <= 0.7:
			pos += 5
		case bp >= 0.3 && bp <= 0.8:
			pos += 3
		}
		f.positionScore[i] = clampInt(pos, 0, models.MaxPositionScore)

		vo := 0
		if f.isVolumePriceUp[i] {
			vo = 10
		} else if f.isVolumeUp[i] {
			vo = 5
		}
		f.volumeScore[i] = clampInt(vo, 0, models.MaxVolumeScore)

		f.totalScore[i] = clampInt(
			f.squeezeScore[i]+f.trendScore[i]+f.popularityScore[i]+
				f.momentumScore[i]+f.positionScore[i]+f.volumeScore[i],
			0, 100,
		)
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
