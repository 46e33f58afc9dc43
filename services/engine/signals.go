package engine

import (
	"github.com/shopspring/decimal"

	"github.com/mdthewzrd/wzrd-algo-sub001/services/strategy"
)

// SignalType distinguishes the two halves of a round trip.
type SignalType string

const (
	SignalEntry SignalType = "entry"
	SignalExit  SignalType = "exit"
)

// Signal is one emitted event. Entries and their exits share a PositionID.
// Pnl is set on exits with a realized result; an end-of-data exit carries
// none. Signals are never mutated after emission.
type Signal struct {
	Type       SignalType         `json:"type"`
	Timestamp  int64              `json:"timestamp"`
	Price      decimal.Decimal    `json:"price"`
	Shares     decimal.Decimal    `json:"shares"`
	Direction  strategy.Direction `json:"direction"`
	Reason     string             `json:"reason"`
	PositionID string             `json:"position_id"`
	Pnl        *decimal.Decimal   `json:"pnl,omitempty"`
}

// Meta is the run metadata attached to every successful result.
type Meta struct {
	Symbol         string `json:"symbol"`
	EngineVersion  string `json:"engine_version"`
	StrategyHash   string `json:"strategy_hash"`
	BarsProcessed  int    `json:"bars_processed"`
	WarmupSkips    int    `json:"insufficient_history"`
	Gaps           int    `json:"gaps"`
	EntriesEmitted int    `json:"entries_emitted"`
	ExitsEmitted   int    `json:"exits_emitted"`
	DroppedOpenPos bool   `json:"dropped_open_position,omitempty"`
}

// Result is the terminal output of one run: the ordered signal list plus
// metadata.
type Result struct {
	Signals []Signal `json:"signals"`
	Meta    Meta     `json:"meta"`
}

// Report is the collaborator-facing envelope: either the signal list or a
// structured error, never both.
type Report struct {
	Error   string   `json:"error,omitempty"`
	Signals []Signal `json:"signals,omitempty"`
	Meta    *Meta    `json:"meta,omitempty"`
}

// NewReport folds a run outcome into the wire shape.
func NewReport(res *Result, err error) Report {
	if err != nil {
		return Report{Error: err.Error()}
	}
	return Report{Signals: res.Signals, Meta: &res.Meta}
}
