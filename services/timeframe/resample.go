package timeframe

import (
	"sort"

	"github.com/mdthewzrd/wzrd-algo-sub001/services/market"
)

// Resample aggregates a base series into epoch-aligned buckets of stepMs:
// open = first, high = max, low = min, close = last, volume = sum. The
// returned bars are stamped with the bucket open time and sorted ascending.
// Buckets with no source bars are simply absent; gaps stay gaps.
func Resample(bars []market.Bar, stepMs int64) []market.Bar {
	if stepMs <= 0 || len(bars) == 0 {
		return nil
	}
	buckets := make(map[int64]*market.Bar, len(bars))
	order := make([]int64, 0, len(bars))

	for _, b := range bars {
		start := (b.Timestamp / stepMs) * stepMs
		agg, ok := buckets[start]
		if !ok {
			nb := b
			nb.Timestamp = start
			buckets[start] = &nb
			order = append(order, start)
			continue
		}
		if b.High.GreaterThan(agg.High) {
			agg.High = b.High
		}
		if b.Low.LessThan(agg.Low) {
			agg.Low = b.Low
		}
		agg.Close = b.Close
		agg.Volume = agg.Volume.Add(b.Volume)
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]market.Bar, 0, len(order))
	for _, start := range order {
		out = append(out, *buckets[start])
	}
	return out
}
