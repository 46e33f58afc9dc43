package engine

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/mdthewzrd/wzrd-algo-sub001/services/market"
	"github.com/mdthewzrd/wzrd-algo-sub001/services/strategy"
)

const stepMs = int64(300000)

// mkBars builds a 5m series starting at epoch. Open tracks the close, high
// and low sit one unit away, so fills and touch levels are predictable.
func mkBars(closes ...float64) []market.Bar {
	return mkBarsAt(0, closes...)
}

func mkBarsAt(startMs int64, closes ...float64) []market.Bar {
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		d := decimal.NewFromFloat(c)
		bars[i] = market.Bar{
			Timestamp: startMs + int64(i)*stepMs,
			Open:      d,
			High:      d.Add(decimal.NewFromInt(1)),
			Low:       d.Sub(decimal.NewFromInt(1)),
			Close:     d,
			Volume:    decimal.NewFromInt(10),
		}
	}
	return bars
}

func compile(t *testing.T, d *strategy.Descriptor) *strategy.Compiled {
	t.Helper()
	c, err := d.Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return c
}

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func descriptor(entries, exits []strategy.ConditionSpec) *strategy.Descriptor {
	return &strategy.Descriptor{
		Symbol:          "TESTUSD",
		Timeframe:       "5m",
		EntryConditions: entries,
		ExitConditions:  exits,
		RiskManagement:  strategy.RiskSpec{Shares: decimal.NewFromInt(1)},
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{}, nil); !errors.Is(err, strategy.ErrConfig) {
		t.Fatalf("missing end-of-data policy: want ErrConfig, got %v", err)
	}
	if _, err := New(Config{EndOfData: "maybe"}, nil); !errors.Is(err, strategy.ErrConfig) {
		t.Fatalf("bad policy: want ErrConfig, got %v", err)
	}
	if _, err := New(Config{EndOfData: EndOfDataReport, Fill: "limit"}, nil); !errors.Is(err, strategy.ErrConfig) {
		t.Fatalf("bad fill rule: want ErrConfig, got %v", err)
	}
}

func TestRunRejectsBadData(t *testing.T) {
	e := newEngine(t, Config{EndOfData: EndOfDataReport})
	strat := compile(t, descriptor(
		[]strategy.ConditionSpec{{Name: "in", Direction: strategy.Long, Expression: "close > 0"}}, nil))

	if _, err := e.Run(nil, strat); !errors.Is(err, market.ErrData) {
		t.Fatalf("empty series: want ErrData, got %v", err)
	}
	bad := mkBars(1, 2)
	bad[1].Timestamp = bad[0].Timestamp
	if _, err := e.Run(bad, strat); !errors.Is(err, market.ErrData) {
		t.Fatalf("duplicate timestamps: want ErrData, got %v", err)
	}
}

func TestRunPairedEntryExit(t *testing.T) {
	e := newEngine(t, Config{EndOfData: EndOfDataReport})
	strat := compile(t, descriptor(
		[]strategy.ConditionSpec{{Name: "breakout", Direction: strategy.Long, Expression: "close > 10"}},
		[]strategy.ConditionSpec{{Name: "breakdown", Direction: strategy.CloseLong, Expression: "close < 5"}}))

	res, err := e.Run(mkBars(1, 11, 12, 4, 6), strat)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Signals) != 2 {
		t.Fatalf("want 2 signals, got %d", len(res.Signals))
	}
	entry, exit := res.Signals[0], res.Signals[1]
	if entry.Type != SignalEntry || entry.Reason != "breakout" || entry.Timestamp != stepMs {
		t.Fatalf("entry: %+v", entry)
	}
	if entry.Price.String() != "11" || entry.Direction != strategy.Long {
		t.Fatalf("entry fill: %+v", entry)
	}
	if exit.Type != SignalExit || exit.Reason != "breakdown" || exit.Timestamp != 3*stepMs {
		t.Fatalf("exit: %+v", exit)
	}
	if exit.PositionID != entry.PositionID || exit.PositionID == "" {
		t.Fatalf("entry and exit must share a position id")
	}
	if exit.Pnl == nil || exit.Pnl.String() != "-7" {
		t.Fatalf("pnl: want -7, got %v", exit.Pnl)
	}
	if res.Meta.EntriesEmitted != 1 || res.Meta.ExitsEmitted != 1 {
		t.Fatalf("meta counts: %+v", res.Meta)
	}
}

func TestRunShortPnl(t *testing.T) {
	e := newEngine(t, Config{EndOfData: EndOfDataReport})
	strat := compile(t, descriptor(
		[]strategy.ConditionSpec{{Name: "fade", Direction: strategy.Short, Expression: "close < 5"}},
		[]strategy.ConditionSpec{{Name: "stop_out", Direction: strategy.CloseShort, Expression: "close > 10"}}))

	res, err := e.Run(mkBars(4, 11), strat)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Signals) != 2 {
		t.Fatalf("want 2 signals, got %d", len(res.Signals))
	}
	exit := res.Signals[1]
	if exit.Direction != strategy.CloseShort {
		t.Fatalf("exit direction: %s", exit.Direction)
	}
	if exit.Pnl == nil || exit.Pnl.String() != "-7" {
		t.Fatalf("short pnl: want -7, got %v", exit.Pnl)
	}
}

func TestRunAtMostOnePosition(t *testing.T) {
	e := newEngine(t, Config{EndOfData: EndOfDataReport})
	strat := compile(t, descriptor(
		[]strategy.ConditionSpec{
			{Name: "first", Direction: strategy.Long, Expression: "close > 0"},
			{Name: "second", Direction: strategy.Long, Expression: "close > 0"},
		}, nil))

	res, err := e.Run(mkBars(1, 2, 3), strat)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Signals) != 2 {
		t.Fatalf("want entry + end-of-data exit, got %d signals", len(res.Signals))
	}
	if res.Signals[0].Reason != "first" {
		t.Fatalf("first matching condition wins, got %q", res.Signals[0].Reason)
	}
	exit := res.Signals[1]
	if exit.Reason != "end-of-data" || exit.Pnl != nil {
		t.Fatalf("end-of-data exit carries no pnl: %+v", exit)
	}
	if exit.Timestamp != 2*stepMs {
		t.Fatalf("end-of-data exit stamps the last bar, got %d", exit.Timestamp)
	}
}

func TestRunEndOfDataDrop(t *testing.T) {
	e := newEngine(t, Config{EndOfData: EndOfDataDrop})
	strat := compile(t, descriptor(
		[]strategy.ConditionSpec{{Name: "in", Direction: strategy.Long, Expression: "close > 0"}}, nil))

	res, err := e.Run(mkBars(1, 2, 3), strat)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Signals) != 0 {
		t.Fatalf("dropped position should leave no signals, got %d", len(res.Signals))
	}
	if !res.Meta.DroppedOpenPos {
		t.Fatalf("meta should record the drop")
	}
	if res.Meta.EntriesEmitted != 0 || res.Meta.ExitsEmitted != 0 {
		t.Fatalf("meta counts after drop: %+v", res.Meta)
	}
}

func TestRunReverseEntryClosesPosition(t *testing.T) {
	e := newEngine(t, Config{EndOfData: EndOfDataReport})
	strat := compile(t, descriptor(
		[]strategy.ConditionSpec{
			{Name: "long_hi", Direction: strategy.Long, Expression: "close > 10"},
			{Name: "short_lo", Direction: strategy.Short, Expression: "close < 5"},
		}, nil))

	res, err := e.Run(mkBars(11, 12, 4), strat)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Signals) != 2 {
		t.Fatalf("want 2 signals, got %d", len(res.Signals))
	}
	exit := res.Signals[1]
	if exit.Reason != "reverse:short_lo" || exit.Direction != strategy.CloseLong {
		t.Fatalf("reverse exit: %+v", exit)
	}
	if exit.Pnl == nil || exit.Pnl.String() != "-7" {
		t.Fatalf("reverse pnl: want -7, got %v", exit.Pnl)
	}
}

func TestRunNextOpenFill(t *testing.T) {
	e := newEngine(t, Config{EndOfData: EndOfDataReport, Fill: FillNextOpen})
	strat := compile(t, descriptor(
		[]strategy.ConditionSpec{{Name: "in", Direction: strategy.Long, Expression: "close > 10"}}, nil))

	res, err := e.Run(mkBars(9, 11, 12), strat)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Signals) != 2 {
		t.Fatalf("want 2 signals, got %d", len(res.Signals))
	}
	entry := res.Signals[0]
	if entry.Timestamp != 2*stepMs || entry.Price.String() != "12" {
		t.Fatalf("next-open fill: want ts=%d price=12, got ts=%d price=%s",
			2*stepMs, entry.Timestamp, entry.Price)
	}

	// A signal on the last bar has no next open; nothing fires.
	res, err = e.Run(mkBars(9, 11), strat)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Signals) != 0 {
		t.Fatalf("last-bar signal with next-open fill should be dropped, got %d signals", len(res.Signals))
	}
}

func TestRunTakeProfitFirstTouch(t *testing.T) {
	e := newEngine(t, Config{EndOfData: EndOfDataReport})
	d := descriptor(
		[]strategy.ConditionSpec{{Name: "in", Direction: strategy.Long, Expression: "close > 0"}}, nil)
	d.RiskManagement.TakeProfitPct = 4
	d.RiskManagement.StopLossPct = 2
	strat := compile(t, d)

	res, err := e.Run(mkBars(10, 11), strat)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Signals) != 2 {
		t.Fatalf("want 2 signals, got %d", len(res.Signals))
	}
	exit := res.Signals[1]
	if exit.Reason != "take-profit" {
		t.Fatalf("exit reason: %q", exit.Reason)
	}
	if exit.Price.String() != "10.4" {
		t.Fatalf("take-profit fills at the level, got %s", exit.Price)
	}
	if exit.Pnl == nil || exit.Pnl.String() != "0.4" {
		t.Fatalf("pnl: want 0.4, got %v", exit.Pnl)
	}
}

func TestRunWarmupIsInert(t *testing.T) {
	e := newEngine(t, Config{EndOfData: EndOfDataReport})
	strat := compile(t, descriptor(
		[]strategy.ConditionSpec{{Name: "in", Direction: strategy.Long, Expression: "close_15m > 0"}}, nil))

	res, err := e.Run(mkBars(1, 2, 3, 4, 5, 6, 7), strat)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Signals) == 0 || res.Signals[0].Timestamp != 3*stepMs {
		t.Fatalf("first entry must wait for the first complete 15m bar, got %+v", res.Signals)
	}
	if res.Meta.WarmupSkips != 3 {
		t.Fatalf("warm-up rows should be counted, want 3, got %d", res.Meta.WarmupSkips)
	}
}

func TestRunTimeFilterGatesEntries(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	// 5m bars from 12:00 UTC (07:00 New York, winter). The window opens at
	// 13:00 UTC and closes at 18:00 UTC.
	start := time.Date(2024, time.January, 2, 12, 0, 0, 0, time.UTC).UnixMilli()
	closes := make([]float64, 36)
	for i := range closes {
		closes[i] = 10
	}
	bars := mkBarsAt(start, closes...)

	filtered := descriptor(
		[]strategy.ConditionSpec{{
			Name: "in", Direction: strategy.Long, Expression: "close > 0",
			TimeFilter: &strategy.TimeFilterSpec{Start: "08:00", End: "13:00", Timezone: "America/New_York"},
		}},
		[]strategy.ConditionSpec{{Name: "out", Direction: strategy.CloseLong, Expression: "close > 0"}})
	unfiltered := descriptor(
		[]strategy.ConditionSpec{{Name: "in", Direction: strategy.Long, Expression: "close > 0"}},
		[]strategy.ConditionSpec{{Name: "out", Direction: strategy.CloseLong, Expression: "close > 0"}})

	e := newEngine(t, Config{EndOfData: EndOfDataDrop})
	resF, err := e.Run(bars, compile(t, filtered))
	if err != nil {
		t.Fatalf("Run filtered: %v", err)
	}
	resU, err := e.Run(bars, compile(t, unfiltered))
	if err != nil {
		t.Fatalf("Run unfiltered: %v", err)
	}

	if resF.Meta.EntriesEmitted == 0 {
		t.Fatalf("window overlaps the series, entries expected")
	}
	for _, s := range resF.Signals {
		if s.Type != SignalEntry {
			continue
		}
		m := time.UnixMilli(s.Timestamp).In(loc)
		minute := m.Hour()*60 + m.Minute()
		if minute < 8*60 || minute > 13*60 {
			t.Fatalf("entry at %s is outside the window", m.Format("15:04"))
		}
	}
	wantFirst := time.Date(2024, time.January, 2, 13, 0, 0, 0, time.UTC).UnixMilli()
	if resF.Signals[0].Timestamp != wantFirst {
		t.Fatalf("first entry: want %d, got %d", wantFirst, resF.Signals[0].Timestamp)
	}
	if resU.Meta.EntriesEmitted <= resF.Meta.EntriesEmitted {
		t.Fatalf("removing the filter must not reduce entries: %d vs %d",
			resU.Meta.EntriesEmitted, resF.Meta.EntriesEmitted)
	}
}

// Full strategy shape: 5m crossover entry, 1h trend gate, New York session
// window, all on one fixture with a single known cross.
func TestRunGatedCrossoverScenario(t *testing.T) {
	closes := make([]float64, 0, 80)
	v := 100.0
	for i := 0; i < 40; i++ {
		closes = append(closes, v)
		v -= 1
	}
	for i := 0; i < 40; i++ {
		closes = append(closes, v)
		v += 2
	}
	// 13:00 UTC is 08:00 in New York in winter; the window runs to 18:00
	// UTC, bar index 60.
	start := time.Date(2024, time.January, 2, 13, 0, 0, 0, time.UTC).UnixMilli()
	bars := mkBarsAt(start, closes...)

	spec := func(window *strategy.TimeFilterSpec) *strategy.Compiled {
		return compile(t, descriptor(
			[]strategy.ConditionSpec{{
				Name:       "gated_cross_up",
				Direction:  strategy.Long,
				Expression: "EMA9 > EMA20 AND previous_EMA9 <= previous_EMA20 AND close_1h > 5",
				TimeFilter: window,
			}}, nil))
	}

	e := newEngine(t, Config{EndOfData: EndOfDataReport})

	res, err := e.Run(bars, spec(&strategy.TimeFilterSpec{
		Start: "08:00", End: "13:00", Timezone: "America/New_York",
	}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Meta.EntriesEmitted != 1 {
		t.Fatalf("exactly one gated cross expected, got %d", res.Meta.EntriesEmitted)
	}
	entryTs := int64(0)
	for _, s := range res.Signals {
		if s.Type == SignalEntry {
			entryTs = s.Timestamp
		}
	}
	if entryTs <= start+40*stepMs || entryTs >= start+60*stepMs {
		t.Fatalf("cross should land in the recovery leg inside the window, got ts %d", entryTs)
	}

	// A window that closes before the cross happens yields zero entries.
	res, err = e.Run(bars, spec(&strategy.TimeFilterSpec{
		Start: "08:00", End: "08:30", Timezone: "America/New_York",
	}))
	if err != nil {
		t.Fatalf("Run narrow window: %v", err)
	}
	if res.Meta.EntriesEmitted != 0 {
		t.Fatalf("narrow window should gate the cross out, got %d entries", res.Meta.EntriesEmitted)
	}
}

func TestRunEmaCrossoverScenario(t *testing.T) {
	// A slow ramp down then up produces exactly one 9/20 cross in each
	// direction.
	closes := make([]float64, 0, 80)
	v := 100.0
	for i := 0; i < 40; i++ {
		closes = append(closes, v)
		v -= 1
	}
	for i := 0; i < 40; i++ {
		closes = append(closes, v)
		v += 2
	}
	bars := mkBars(closes...)

	strat := compile(t, descriptor(
		[]strategy.ConditionSpec{{
			Name:       "cross_up",
			Direction:  strategy.Long,
			Expression: "EMA9 > EMA20 AND previous_EMA9 <= previous_EMA20",
		}},
		[]strategy.ConditionSpec{{
			Name:       "cross_down",
			Direction:  strategy.CloseLong,
			Expression: "EMA9 < EMA20 AND previous_EMA9 >= previous_EMA20",
		}}))

	e := newEngine(t, Config{EndOfData: EndOfDataReport})
	res, err := e.Run(bars, strat)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Meta.EntriesEmitted != 1 {
		t.Fatalf("one upward cross expected, got %d entries", res.Meta.EntriesEmitted)
	}
	entry := res.Signals[0]
	if entry.Reason != "cross_up" || entry.Timestamp <= 40*stepMs {
		t.Fatalf("cross should fire during the recovery leg: %+v", entry)
	}
	exit := res.Signals[len(res.Signals)-1]
	if exit.Type != SignalExit || exit.Reason != "end-of-data" {
		t.Fatalf("uptrend never crosses back down, want end-of-data exit, got %+v", exit)
	}
	if res.Meta.WarmupSkips == 0 {
		t.Fatalf("EMA warm-up rows should be counted")
	}
}
