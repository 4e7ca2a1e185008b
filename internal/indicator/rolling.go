package indicator

import "math"

// Rolling-window primitives over float64 series. Positions without a
// full window hold NaN, and a NaN anywhere inside the window makes the
// output NaN, matching warm-up propagation through chained indicators.

func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func rollingMean(x []float64, window int) []float64 {
	out := nans(len(x))
	for i := window - 1; i < len(x); i++ {
		sum := 0.0
		ok := true
		for j := i - window + 1; j <= i; j++ {
			if math.IsNaN(x[j]) {
				ok = false
				break
			}
			sum += x[j]
		}
		if ok {
			out[i] = sum / float64(window)
		}
	}
	return out
}

// rollingStd is the population standard deviation over the window.
func rollingStd(x []float64, window int) []float64 {
	out := nans(len(x))
	for i := window - 1; i < len(x); i++ {
		sum := 0.0
		ok := true
		for j := i - window + 1; j <= i; j++ {
			if math.IsNaN(x[j]) {
				ok = false
				break
			}
			sum += x[j]
		}
		if !ok {
			continue
		}
		mean := sum / float64(window)
		varsum := 0.0
		for j := i - window + 1; j <= i; j++ {
			d := x[j] - mean
			varsum += d * d
		}
		out[i] = math.Sqrt(varsum / float64(window))
	}
	return out
}

// ema is the span-based exponential moving average seeded with the
// first value, alpha = 2/(span+1). Defined from the first bar on.
func ema(x []float64, span int) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}
	alpha := 2.0 / (float64(span) + 1.0)
	out[0] = x[0]
	for i := 1; i < len(x); i++ {
		out[i] = alpha*x[i] + (1-alpha)*out[i-1]
	}
	return out
}

// percentileRank is the fraction of the trailing lookback values at or
// below the current one, scaled to 0..100. NaN until a full lookback of
// defined values is available.
func percentileRank(x []float64, lookback int) []float64 {
	out := nans(len(x))
	for i := lookback - 1; i < len(x); i++ {
		cur := x[i]
		if math.IsNaN(cur) {
			continue
		}
		count, defined := 0, 0
		for j := i - lookback + 1; j <= i; j++ {
			if math.IsNaN(x[j]) {
				continue
			}
			defined++
			if x[j] <= cur {
				count++
			}
		}
		if defined < lookback {
			continue
		}
		out[i] = float64(count) / float64(lookback) * 100
	}
	return out
}

func round(x float64, places int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
