// Package timeframe resamples a base bar series into coarser buckets and
// builds the per-row feature table the rule evaluator reads. The join is
// strictly point-in-time: a base row only ever sees coarser bars whose close
// time is at or before the row's own timestamp.
package timeframe

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	minuteMs = int64(60 * 1000)
	hourMs   = 60 * minuteMs
	dayMs    = 24 * hourMs
)

// Parse converts a timeframe label ("5m", "5min", "1h", "1d", "90m") into a
// step in milliseconds.
func Parse(s string) (int64, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	var unit int64
	var num string
	switch {
	case strings.HasSuffix(t, "min"):
		unit, num = minuteMs, strings.TrimSuffix(t, "min")
	case strings.HasSuffix(t, "m"):
		unit, num = minuteMs, strings.TrimSuffix(t, "m")
	case strings.HasSuffix(t, "h"):
		unit, num = hourMs, strings.TrimSuffix(t, "h")
	case strings.HasSuffix(t, "d"):
		unit, num = dayMs, strings.TrimSuffix(t, "d")
	default:
		return 0, errors.Errorf("unsupported timeframe: %q", s)
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 1 {
		return 0, errors.Errorf("unsupported timeframe: %q", s)
	}
	return int64(n) * unit, nil
}

// Canonical renders a step back into its shortest label, so "5min" and "5m"
// collapse to the same feature column suffix.
func Canonical(stepMs int64) string {
	switch {
	case stepMs%dayMs == 0:
		return fmt.Sprintf("%dd", stepMs/dayMs)
	case stepMs%hourMs == 0:
		return fmt.Sprintf("%dh", stepMs/hourMs)
	default:
		return fmt.Sprintf("%dm", stepMs/minuteMs)
	}
}
