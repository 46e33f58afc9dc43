package market

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ErrData marks problems with the input bar series itself (empty input,
// non-monotonic timestamps, unreadable rows). A run aborts on these before
// any signal is emitted.
var ErrData = errors.New("data error")

// Bar is one OHLCV record. Timestamp is the bar's open time in Unix
// milliseconds, UTC.
type Bar struct {
	Timestamp int64
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// Time returns the bar open time as a UTC time.Time.
func (b Bar) Time() time.Time { return time.UnixMilli(b.Timestamp).UTC() }

// CloseTime returns the instant at which a bar of the given step is fully
// known.
func (b Bar) CloseTime(stepMs int64) int64 { return b.Timestamp + stepMs }

// Validate checks the series invariants: non-empty, strictly increasing
// timestamps, no duplicates.
func Validate(bars []Bar) error {
	if len(bars) == 0 {
		return errors.Wrap(ErrData, "empty bar series")
	}
	for i := 1; i < len(bars); i++ {
		if bars[i].Timestamp <= bars[i-1].Timestamp {
			return errors.Wrapf(ErrData, "non-monotonic timestamps at index %d (%d -> %d)",
				i, bars[i-1].Timestamp, bars[i].Timestamp)
		}
	}
	return nil
}

// DetectCadence returns the most common delta between consecutive bars, in
// milliseconds. Falls back to fallbackMs when the series is too short to
// vote.
func DetectCadence(bars []Bar, fallbackMs int64) int64 {
	if len(bars) < 2 {
		return fallbackMs
	}
	limit := len(bars)
	if limit > 2000 {
		limit = 2000
	}
	deltaCount := make(map[int64]int)
	for i := 1; i < limit; i++ {
		d := bars[i].Timestamp - bars[i-1].Timestamp
		if d > 0 {
			deltaCount[d]++
		}
	}
	best := fallbackMs
	bestCount := 0
	for d, c := range deltaCount {
		if c > bestCount || (c == bestCount && d < best) {
			best = d
			bestCount = c
		}
	}
	return best
}

// DetectGaps returns the open times of bars that are followed by a hole
// larger than the expected step. Gaps are tolerated downstream; this is
// reporting only.
func DetectGaps(bars []Bar, stepMs int64) []int64 {
	var gaps []int64
	for i := 1; i < len(bars); i++ {
		if bars[i].Timestamp-bars[i-1].Timestamp > stepMs {
			gaps = append(gaps, bars[i-1].Timestamp)
		}
	}
	return gaps
}

// CheckAlignment counts bars whose open time is not aligned to the cadence.
func CheckAlignment(bars []Bar, stepMs int64) int {
	if stepMs <= 0 {
		return 0
	}
	misaligned := 0
	for _, b := range bars {
		if b.Timestamp%stepMs != 0 {
			misaligned++
		}
	}
	return misaligned
}

// String implements a compact debug rendering used in log lines.
func (b Bar) String() string {
	return fmt.Sprintf("%s O=%s H=%s L=%s C=%s V=%s",
		b.Time().Format("2006-01-02 15:04:05"),
		b.Open.String(), b.High.String(), b.Low.String(), b.Close.String(), b.Volume.String())
}
