package rules

import (
	"math"

	"github.com/mdthewzrd/wzrd-algo-sub001/services/timeframe"
)

// Stats accumulates per-run evaluation counters. Unavailable counts
// comparisons that resolved false only because a value was still warming up
// (or the previous row did not exist yet).
type Stats struct {
	Unavailable int
}

type evalCtx struct {
	row   *timeframe.FeatureRow
	prev  *timeframe.FeatureRow
	stats *Stats
}

// Eval walks the rule tree against one row. The previous row may be nil at
// the start of the series; every previous_* reference then reads as
// unavailable. The time filter, if any, must be checked by the caller via
// TimeFilter.Contains before trusting a true result — Condition types in the
// strategy package bundle the two.
func (r *Rule) Eval(row, prev *timeframe.FeatureRow, stats *Stats) bool {
	ctx := &evalCtx{row: row, prev: prev, stats: stats}
	return r.Root.eval(ctx)
}

func (n CmpNode) eval(ctx *evalCtx) bool {
	l, lok := resolve(n.Left, ctx)
	r, rok := resolve(n.Right, ctx)
	if !lok || !rok {
		if ctx.stats != nil {
			ctx.stats.Unavailable++
		}
		return false
	}
	switch n.Op {
	case OpGT:
		return l > r
	case OpLT:
		return l < r
	case OpGE:
		return l >= r
	case OpLE:
		return l <= r
	case OpEQ:
		return l == r
	}
	return false
}

func (n AndNode) eval(ctx *evalCtx) bool {
	// No short circuit: both sides always evaluate so the unavailable
	// counter stays independent of operand order.
	left := n.Left.eval(ctx)
	right := n.Right.eval(ctx)
	return left && right
}

func (n OrNode) eval(ctx *evalCtx) bool {
	left := n.Left.eval(ctx)
	right := n.Right.eval(ctx)
	return left || right
}

func resolve(o Operand, ctx *evalCtx) (float64, bool) {
	if o.IsLiteral {
		return o.Literal, true
	}
	src := ctx.row
	if o.Prev {
		if ctx.prev == nil {
			return math.NaN(), false
		}
		src = ctx.prev
	}
	v := src.Value(o.Column)
	if math.IsNaN(v) {
		return v, false
	}
	return v, true
}
