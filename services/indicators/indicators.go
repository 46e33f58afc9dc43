// Package indicators holds the pure indicator math. Every function is total
// over any input length: positions without enough history carry NaN instead
// of a value, and nothing here ever panics on short input.
package indicators

import (
	"math"

	"github.com/mdthewzrd/wzrd-algo-sub001/services/market"
)

// EMA computes a TradingView-style exponential moving average: the value at
// index period-1 is seeded with the simple average of the first period
// inputs, later values use alpha = 2/(period+1). Everything before the seed
// is NaN.
func EMA(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period < 1 || len(values) < period {
		return out
	}
	var sma float64
	for i := 0; i < period; i++ {
		sma += values[i]
	}
	sma /= float64(period)
	out[period-1] = sma

	alpha := 2.0 / float64(period+1)
	oneMinusAlpha := 1.0 - alpha
	for i := period; i < len(values); i++ {
		out[i] = values[i]*alpha + out[i-1]*oneMinusAlpha
	}
	return out
}

// SMA computes a rolling mean over period bars, NaN during warm-up.
func SMA(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period < 1 || len(values) < period {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// RollingStdBand returns upper/lower bands at mean ± mult sigma, where sigma
// is the population standard deviation over period bars. Both series are NaN
// until a full window is available.
func RollingStdBand(values []float64, period int, mult float64) (upper, lower []float64) {
	upper = nanSeries(len(values))
	lower = nanSeries(len(values))
	if period < 1 || len(values) < period {
		return upper, lower
	}
	for i := period - 1; i < len(values); i++ {
		var sum float64
		for j := i - period + 1; j <= i; j++ {
			sum += values[j]
		}
		mean := sum / float64(period)
		var sq float64
		for j := i - period + 1; j <= i; j++ {
			d := values[j] - mean
			sq += d * d
		}
		sigma := math.Sqrt(sq / float64(period))
		upper[i] = mean + mult*sigma
		lower[i] = mean - mult*sigma
	}
	return upper, lower
}

// VWAP computes the cumulative volume-weighted average of the typical price
// (H+L+C)/3, anchored at the first bar of the series. Session-anchored VWAP
// is obtained by cutting the series at the session boundary before calling.
// Bars with zero cumulative volume carry NaN.
func VWAP(bars []market.Bar) []float64 {
	out := nanSeries(len(bars))
	var cumPV, cumV float64
	for i, b := range bars {
		h, _ := b.High.Float64()
		l, _ := b.Low.Float64()
		c, _ := b.Close.Float64()
		v, _ := b.Volume.Float64()
		typical := (h + l + c) / 3.0
		cumPV += typical * v
		cumV += v
		if cumV > 0 {
			out[i] = cumPV / cumV
		}
	}
	return out
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
