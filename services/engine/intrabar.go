package engine

import (
	"github.com/shopspring/decimal"

	"github.com/mdthewzrd/wzrd-algo-sub001/services/market"
	"github.com/mdthewzrd/wzrd-algo-sub001/services/strategy"
)

// firstTouch says which armed level a bar reached first.
type firstTouch int

const (
	touchNone firstTouch = iota
	touchTP
	touchSL
)

// resolveFirstTouch decides which of the armed TP/SL levels fired inside a
// bar. When both levels sit inside the same bar the extremum closer to the
// bar's open is assumed to have been touched first (synthetic
// open-extremum-other-close path).
func resolveFirstTouch(bar market.Bar, dir strategy.Direction, tp, sl decimal.Decimal, hasTP, hasSL bool) firstTouch {
	var tpHit, slHit bool
	if dir == strategy.Long {
		tpHit = hasTP && bar.High.GreaterThanOrEqual(tp)
		slHit = hasSL && bar.Low.LessThanOrEqual(sl)
	} else {
		tpHit = hasTP && bar.Low.LessThanOrEqual(tp)
		slHit = hasSL && bar.High.GreaterThanOrEqual(sl)
	}

	if tpHit && slHit {
		distHigh := bar.High.Sub(bar.Open).Abs()
		distLow := bar.Open.Sub(bar.Low).Abs()
		lowFirst := distLow.LessThan(distHigh)
		if dir == strategy.Long {
			if lowFirst {
				return touchSL
			}
			return touchTP
		}
		if lowFirst {
			return touchTP
		}
		return touchSL
	}
	if slHit {
		return touchSL
	}
	if tpHit {
		return touchTP
	}
	return touchNone
}
