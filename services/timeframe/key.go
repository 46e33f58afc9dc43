package timeframe

import (
	"fmt"
	"sort"
)

// Kind enumerates the feature columns the aligner can materialize.
type Kind int

const (
	KindOpen Kind = iota
	KindHigh
	KindLow
	KindClose
	KindVolume
	KindEMA
	KindSMA
	KindVWAP
	KindBBUpper
	KindBBLower
)

// Key identifies one feature column within a single timeframe. Period is
// zero for price/volume/VWAP columns.
type Key struct {
	Kind   Kind
	Period int
}

// String renders the column name used in rule expressions and FeatureRow
// value maps, without any timeframe suffix.
func (k Key) String() string {
	switch k.Kind {
	case KindOpen:
		return "open"
	case KindHigh:
		return "high"
	case KindLow:
		return "low"
	case KindClose:
		return "close"
	case KindVolume:
		return "volume"
	case KindEMA:
		return fmt.Sprintf("EMA%d", k.Period)
	case KindSMA:
		return fmt.Sprintf("SMA%d", k.Period)
	case KindVWAP:
		return "VWAP"
	case KindBBUpper:
		return fmt.Sprintf("BBU%d", k.Period)
	case KindBBLower:
		return fmt.Sprintf("BBL%d", k.Period)
	}
	return "?"
}

// Warmup reports how many bars the column needs before it produces a value.
func (k Key) Warmup() int {
	switch k.Kind {
	case KindEMA, KindSMA, KindBBUpper, KindBBLower:
		return k.Period
	default:
		return 1
	}
}

// Plan is the full set of feature columns to materialize, grouped by
// timeframe step. The base step's own columns use bare names; coarser
// columns get a "_<tf>" suffix.
type Plan struct {
	BaseStepMs int64
	BandMult   float64
	Columns    map[int64][]Key
}

// NewPlan builds an empty plan for the given base step. BandMult defaults
// to 2.0 unless overridden by the strategy descriptor.
func NewPlan(baseStepMs int64) *Plan {
	return &Plan{BaseStepMs: baseStepMs, BandMult: 2.0, Columns: make(map[int64][]Key)}
}

// Add registers a column requirement, deduplicating repeats.
func (p *Plan) Add(stepMs int64, k Key) {
	for _, have := range p.Columns[stepMs] {
		if have == k {
			return
		}
	}
	p.Columns[stepMs] = append(p.Columns[stepMs], k)
}

// ColumnName returns the feature-map key for a column at a step.
func (p *Plan) ColumnName(stepMs int64, k Key) string {
	if stepMs == p.BaseStepMs {
		return k.String()
	}
	return k.String() + "_" + Canonical(stepMs)
}

// ColumnNames lists every materialized column name in deterministic order.
func (p *Plan) ColumnNames() []string {
	steps := make([]int64, 0, len(p.Columns))
	for s := range p.Columns {
		steps = append(steps, s)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i] < steps[j] })
	var names []string
	for _, s := range steps {
		keys := append([]Key(nil), p.Columns[s]...)
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].Kind != keys[j].Kind {
				return keys[i].Kind < keys[j].Kind
			}
			return keys[i].Period < keys[j].Period
		})
		for _, k := range keys {
			names = append(names, p.ColumnName(s, k))
		}
	}
	return names
}

// MaxWarmup returns the largest warm-up requirement across all planned
// columns, expressed in bars of their own timeframe.
func (p *Plan) MaxWarmup() int {
	max := 0
	for _, keys := range p.Columns {
		for _, k := range keys {
			if w := k.Warmup(); w > max {
				max = w
			}
		}
	}
	return max
}
