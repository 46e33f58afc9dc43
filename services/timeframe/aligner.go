package timeframe

import (
	"math"

	"github.com/mdthewzrd/wzrd-algo-sub001/services/indicators"
	"github.com/mdthewzrd/wzrd-algo-sub001/services/market"
)

// FeatureRow is one base-timeframe bar plus every materialized feature
// column. Rows are built once by Align and must not be mutated afterwards.
type FeatureRow struct {
	Bar    market.Bar
	Values map[string]float64
}

// Value looks up a feature column; missing columns read as NaN.
func (r *FeatureRow) Value(name string) float64 {
	v, ok := r.Values[name]
	if !ok {
		return math.NaN()
	}
	return v
}

// Has reports whether the column was materialized at all (a NaN value still
// counts as present: it means warm-up, not a missing column).
func (r *FeatureRow) Has(name string) bool {
	_, ok := r.Values[name]
	return ok
}

// Align builds the feature table for a base series. Base-timeframe columns
// are computed in place; each coarser timeframe is resampled, its columns
// computed on the resampled series, and joined back so that a base row only
// carries the value of the last coarse bar whose close time is <= the row's
// timestamp. Rows before the first complete coarse bar read NaN for that
// timeframe's columns. A series too short for even one coarse bucket is not
// an error: the whole column stays NaN and conditions stay false.
func Align(bars []market.Bar, plan *Plan) []FeatureRow {
	rows := make([]FeatureRow, len(bars))
	for i := range bars {
		rows[i] = FeatureRow{Bar: bars[i], Values: make(map[string]float64, 8)}
	}

	for stepMs, keys := range plan.Columns {
		if stepMs == plan.BaseStepMs {
			cols := computeColumns(bars, keys, plan.BandMult)
			for ki, k := range keys {
				name := plan.ColumnName(stepMs, k)
				for i := range rows {
					rows[i].Values[name] = cols[ki][i]
				}
			}
			continue
		}

		cbars := Resample(bars, stepMs)
		cols := computeColumns(cbars, keys, plan.BandMult)
		// Two-pointer point-in-time join on coarse close time.
		j := -1
		for i := range rows {
			for j+1 < len(cbars) && cbars[j+1].CloseTime(stepMs) <= rows[i].Bar.Timestamp {
				j++
			}
			for ki, k := range keys {
				name := plan.ColumnName(stepMs, k)
				if j < 0 {
					rows[i].Values[name] = math.NaN()
				} else {
					rows[i].Values[name] = cols[ki][j]
				}
			}
		}
	}
	return rows
}

// computeColumns evaluates each requested key over one series, preserving
// key order.
func computeColumns(bars []market.Bar, keys []Key, bandMult float64) [][]float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i], _ = b.Close.Float64()
	}

	// Band pairs share the rolling window; cache per period.
	type band struct{ upper, lower []float64 }
	bands := make(map[int]band)
	bandFor := func(period int) band {
		if b, ok := bands[period]; ok {
			return b
		}
		u, l := indicators.RollingStdBand(closes, period, bandMult)
		b := band{upper: u, lower: l}
		bands[period] = b
		return b
	}

	out := make([][]float64, len(keys))
	for ki, k := range keys {
		switch k.Kind {
		case KindEMA:
			out[ki] = indicators.EMA(closes, k.Period)
		case KindSMA:
			out[ki] = indicators.SMA(closes, k.Period)
		case KindVWAP:
			out[ki] = indicators.VWAP(bars)
		case KindBBUpper:
			out[ki] = bandFor(k.Period).upper
		case KindBBLower:
			out[ki] = bandFor(k.Period).lower
		default:
			col := make([]float64, len(bars))
			for i, b := range bars {
				switch k.Kind {
				case KindOpen:
					col[i], _ = b.Open.Float64()
				case KindHigh:
					col[i], _ = b.High.Float64()
				case KindLow:
					col[i], _ = b.Low.Float64()
				case KindClose:
					col[i] = closes[i]
				case KindVolume:
					col[i], _ = b.Volume.Float64()
				}
			}
			out[ki] = col
		}
	}
	return out
}
