// Package engine walks an aligned feature table in timestamp order and
// turns true conditions into paired entry/exit signals. One run owns its
// position slot and its output list; independent runs share nothing, so
// batch backtests can fan out across goroutines with no synchronization.
package engine

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mdthewzrd/wzrd-algo-sub001/services/market"
	"github.com/mdthewzrd/wzrd-algo-sub001/services/rules"
	"github.com/mdthewzrd/wzrd-algo-sub001/services/strategy"
	"github.com/mdthewzrd/wzrd-algo-sub001/services/timeframe"
)

// Version is stamped into run metadata for reproducibility tracing.
const Version = "1.0.0"

// EndOfDataPolicy says what happens to a position still open at the last
// bar. There is no default: the caller must choose.
type EndOfDataPolicy string

const (
	// EndOfDataReport emits an exit with reason "end-of-data" and no
	// realized PnL.
	EndOfDataReport EndOfDataPolicy = "report"
	// EndOfDataDrop removes the unpaired entry from the output.
	EndOfDataDrop EndOfDataPolicy = "drop"
)

// FillRule picks the entry fill price.
type FillRule string

const (
	FillSignalClose FillRule = "close"
	FillNextOpen    FillRule = "next_open"
)

// Config is explicit run configuration. The engine reads nothing from the
// environment.
type Config struct {
	EndOfData EndOfDataPolicy
	Fill      FillRule
}

// Engine runs compiled strategies over bar series. Stateless across runs.
type Engine struct {
	cfg Config
	log *zap.Logger
}

// New validates the configuration once. The logger may be nil.
func New(cfg Config, log *zap.Logger) (*Engine, error) {
	if cfg.EndOfData != EndOfDataReport && cfg.EndOfData != EndOfDataDrop {
		return nil, errors.Wrapf(strategy.ErrConfig, "end-of-data policy must be %q or %q, got %q",
			EndOfDataReport, EndOfDataDrop, cfg.EndOfData)
	}
	if cfg.Fill == "" {
		cfg.Fill = FillSignalClose
	}
	if cfg.Fill != FillSignalClose && cfg.Fill != FillNextOpen {
		return nil, errors.Wrapf(strategy.ErrConfig, "fill rule must be %q or %q, got %q",
			FillSignalClose, FillNextOpen, cfg.Fill)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{cfg: cfg, log: log}, nil
}

// position is the single open slot during a scan.
type position struct {
	id         string
	dir        strategy.Direction
	entryPrice decimal.Decimal
	shares     decimal.Decimal
	entryIdx   int
	tp, sl     decimal.Decimal
	hasTP      bool
	hasSL      bool
}

type pendingEntry struct {
	cond        *strategy.Condition
	activateIdx int
}

// Run scans the bars with the compiled strategy and returns the ordered
// signal list. Configuration problems were already caught at compile time;
// errors here are data errors and abort before any signal is kept.
func (e *Engine) Run(bars []market.Bar, strat *strategy.Compiled) (*Result, error) {
	if err := market.Validate(bars); err != nil {
		return nil, err
	}

	rows := timeframe.Align(bars, strat.Plan)
	if err := checkColumns(rows, strat.Plan); err != nil {
		return nil, err
	}

	var (
		stats   rules.Stats
		signals []Signal
		open    *position
		pending *pendingEntry
		dropped bool
	)

	for i := range rows {
		row := &rows[i]
		var prev *timeframe.FeatureRow
		if i > 0 {
			prev = &rows[i-1]
		}

		if open == nil {
			if pending != nil {
				if i == pending.activateIdx {
					open = e.openPosition(&signals, row, pending.cond, strat, i, row.Bar.Open)
					pending = nil
				}
				continue
			}
			for ci := range strat.Entries {
				cond := &strat.Entries[ci]
				if !cond.Eval(row, prev, &stats) {
					continue
				}
				if e.cfg.Fill == FillNextOpen {
					if i+1 < len(rows) {
						pending = &pendingEntry{cond: cond, activateIdx: i + 1}
					}
				} else {
					open = e.openPosition(&signals, row, cond, strat, i, row.Bar.Close)
				}
				// Remaining entry conditions are skipped for this row.
				break
			}
			continue
		}

		// OPEN state. Exits are evaluated only on rows after the entry row.
		if i <= open.entryIdx {
			continue
		}

		if t := resolveFirstTouch(row.Bar, open.dir, open.tp, open.sl, open.hasTP, open.hasSL); t != touchNone {
			price := open.sl
			reason := "stop-loss"
			if t == touchTP {
				price = open.tp
				reason = "take-profit"
			}
			e.closePosition(&signals, row, open, price, reason)
			open = nil
			continue
		}

		closedBy := func(name string) {
			e.closePosition(&signals, row, open, row.Bar.Close, name)
			open = nil
		}
		exited := false
		for ci := range strat.Exits {
			cond := &strat.Exits[ci]
			if cond.Direction.Closes(open.dir) && cond.Eval(row, prev, &stats) {
				closedBy(cond.Name)
				exited = true
				break
			}
		}
		if exited {
			continue
		}
		// A reverse-direction entry is an implicit exit.
		for ci := range strat.Entries {
			cond := &strat.Entries[ci]
			if cond.Direction != open.dir && cond.Eval(row, prev, &stats) {
				closedBy("reverse:" + cond.Name)
				break
			}
		}
	}

	if open != nil {
		last := &rows[len(rows)-1]
		switch e.cfg.EndOfData {
		case EndOfDataReport:
			signals = append(signals, Signal{
				Type:       SignalExit,
				Timestamp:  last.Bar.Timestamp,
				Price:      last.Bar.Close,
				Shares:     open.shares,
				Direction:  closeDirection(open.dir),
				Reason:     "end-of-data",
				PositionID: open.id,
			})
		case EndOfDataDrop:
			signals = dropPosition(signals, open.id)
			dropped = true
		}
	}

	meta := Meta{
		Symbol:         strat.Symbol,
		EngineVersion:  Version,
		StrategyHash:   strat.Hash,
		BarsProcessed:  len(rows),
		WarmupSkips:    stats.Unavailable,
		Gaps:           len(market.DetectGaps(bars, strat.BaseStepMs)),
		DroppedOpenPos: dropped,
	}
	for _, s := range signals {
		if s.Type == SignalEntry {
			meta.EntriesEmitted++
		} else {
			meta.ExitsEmitted++
		}
	}

	e.log.Info("scan complete",
		zap.String("symbol", strat.Symbol),
		zap.Int("bars", meta.BarsProcessed),
		zap.Int("entries", meta.EntriesEmitted),
		zap.Int("exits", meta.ExitsEmitted),
		zap.Int("insufficient_history", meta.WarmupSkips),
		zap.Int("gaps", meta.Gaps))

	return &Result{Signals: signals, Meta: meta}, nil
}

func (e *Engine) openPosition(signals *[]Signal, row *timeframe.FeatureRow, cond *strategy.Condition, strat *strategy.Compiled, idx int, price decimal.Decimal) *position {
	pos := &position{
		id:         positionID(strat.Hash, row.Bar.Timestamp),
		dir:        cond.Direction,
		entryPrice: price,
		shares:     strat.Risk.SharesFor(price),
		entryIdx:   idx,
	}
	armLevels(pos, strat.Risk)

	*signals = append(*signals, Signal{
		Type:       SignalEntry,
		Timestamp:  row.Bar.Timestamp,
		Price:      price,
		Shares:     pos.shares,
		Direction:  pos.dir,
		Reason:     cond.Name,
		PositionID: pos.id,
	})
	e.log.Debug("entry",
		zap.String("condition", cond.Name),
		zap.String("direction", string(pos.dir)),
		zap.Int64("ts", row.Bar.Timestamp),
		zap.String("price", price.String()))
	return pos
}

func (e *Engine) closePosition(signals *[]Signal, row *timeframe.FeatureRow, pos *position, price decimal.Decimal, reason string) {
	pnl := price.Sub(pos.entryPrice).Mul(pos.shares)
	if pos.dir == strategy.Short {
		pnl = pnl.Neg()
	}
	*signals = append(*signals, Signal{
		Type:       SignalExit,
		Timestamp:  row.Bar.Timestamp,
		Price:      price,
		Shares:     pos.shares,
		Direction:  closeDirection(pos.dir),
		Reason:     reason,
		PositionID: pos.id,
		Pnl:        &pnl,
	})
	e.log.Debug("exit",
		zap.String("reason", reason),
		zap.Int64("ts", row.Bar.Timestamp),
		zap.String("price", price.String()),
		zap.String("pnl", pnl.String()))
}

func armLevels(pos *position, risk strategy.RiskSpec) {
	slPct := risk.StopLossPct
	tpPct := risk.TakeProfitPct
	if slPct > 0 {
		frac := decimal.NewFromFloat(slPct / 100.0)
		if pos.dir == strategy.Long {
			pos.sl = pos.entryPrice.Mul(decimal.NewFromInt(1).Sub(frac))
		} else {
			pos.sl = pos.entryPrice.Mul(decimal.NewFromInt(1).Add(frac))
		}
		pos.hasSL = true
	}
	if tpPct > 0 {
		frac := decimal.NewFromFloat(tpPct / 100.0)
		if pos.dir == strategy.Long {
			pos.tp = pos.entryPrice.Mul(decimal.NewFromInt(1).Add(frac))
		} else {
			pos.tp = pos.entryPrice.Mul(decimal.NewFromInt(1).Sub(frac))
		}
		pos.hasTP = true
	}
}

// positionID derives a stable UUID from the strategy hash and entry time,
// so identical runs emit byte-identical output.
func positionID(hash string, tsMs int64) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%d", hash, tsMs))).String()
}

func closeDirection(d strategy.Direction) strategy.Direction {
	if d == strategy.Short {
		return strategy.CloseShort
	}
	return strategy.CloseLong
}

func dropPosition(signals []Signal, id string) []Signal {
	out := signals[:0]
	for _, s := range signals {
		if s.PositionID != id {
			out = append(out, s)
		}
	}
	return out
}

// checkColumns guards against a feature table that lacks a column the
// strategy needs. Silently skipping rows would corrupt the ordering
// guarantee, so this aborts the run instead.
func checkColumns(rows []timeframe.FeatureRow, plan *timeframe.Plan) error {
	if len(rows) == 0 {
		return errors.Wrap(market.ErrData, "empty feature table")
	}
	for _, name := range plan.ColumnNames() {
		if !rows[0].Has(name) {
			return errors.Wrapf(market.ErrData, "required column %q missing from feature table", name)
		}
	}
	return nil
}
