// Package rules parses the strategy condition grammar into an expression
// tree at load time and evaluates it row by row. Evaluation is a pure
// function of (row, previous row, condition); any comparison touching an
// unavailable value is false, which keeps warm-up periods inert.
package rules

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/mdthewzrd/wzrd-algo-sub001/services/timeframe"
)

const prevPrefix = "previous_"

// Operand is one side of a comparison: either a numeric literal or a
// feature column, optionally resolved against the previous row.
type Operand struct {
	Literal   float64
	IsLiteral bool
	Column    string
	Prev      bool
}

// parseToken resolves an identifier like EMA9, previous_EMA9_1h or close
// into an operand, registering the column requirement on the plan. Unknown
// indicator names and unknown timeframe suffixes are load-time errors.
func parseToken(tok string, plan *timeframe.Plan) (Operand, error) {
	rest := tok
	prev := false
	if len(rest) >= len(prevPrefix) && strings.EqualFold(rest[:len(prevPrefix)], prevPrefix) {
		prev = true
		rest = rest[len(prevPrefix):]
	}

	name := rest
	stepMs := plan.BaseStepMs
	if i := strings.LastIndex(rest, "_"); i > 0 {
		if step, err := timeframe.Parse(rest[i+1:]); err == nil {
			name = rest[:i]
			stepMs = step
		}
	}

	key, err := parseKey(name)
	if err != nil {
		return Operand{}, errors.Wrapf(err, "token %q", tok)
	}
	plan.Add(stepMs, key)
	return Operand{Column: plan.ColumnName(stepMs, key), Prev: prev}, nil
}

func parseKey(name string) (timeframe.Key, error) {
	switch strings.ToLower(name) {
	case "open":
		return timeframe.Key{Kind: timeframe.KindOpen}, nil
	case "high":
		return timeframe.Key{Kind: timeframe.KindHigh}, nil
	case "low":
		return timeframe.Key{Kind: timeframe.KindLow}, nil
	case "close":
		return timeframe.Key{Kind: timeframe.KindClose}, nil
	case "volume":
		return timeframe.Key{Kind: timeframe.KindVolume}, nil
	case "vwap":
		return timeframe.Key{Kind: timeframe.KindVWAP}, nil
	}

	upper := strings.ToUpper(name)
	for prefix, kind := range map[string]timeframe.Kind{
		"EMA": timeframe.KindEMA,
		"SMA": timeframe.KindSMA,
		"BBU": timeframe.KindBBUpper,
		"BBL": timeframe.KindBBLower,
	} {
		if strings.HasPrefix(upper, prefix) {
			period, err := strconv.Atoi(upper[len(prefix):])
			if err != nil || period < 1 {
				return timeframe.Key{}, errors.Errorf("bad %s period in %q", prefix, name)
			}
			return timeframe.Key{Kind: kind, Period: period}, nil
		}
	}
	return timeframe.Key{}, errors.Errorf("unknown indicator token %q", name)
}
