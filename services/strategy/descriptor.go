// Package strategy owns the declarative strategy descriptor: the JSON
// document a caller hands to the engine, validated and compiled exactly once
// at load time. After Compile succeeds the engine never sees a malformed
// expression or an unknown token.
package strategy

import (
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ErrConfig marks load-time strategy problems: malformed expressions,
// unknown indicator tokens, invalid time-filter timezones. Evaluation never
// starts when one of these is returned.
var ErrConfig = errors.New("configuration error")

// Direction labels what a condition does when it fires.
type Direction string

const (
	Long       Direction = "long"
	Short      Direction = "short"
	CloseLong  Direction = "close_long"
	CloseShort Direction = "close_short"
)

// Sign is +1 for long exposure, -1 for short, 0 otherwise.
func (d Direction) Sign() int {
	switch d {
	case Long, CloseLong:
		return 1
	case Short, CloseShort:
		return -1
	}
	return 0
}

// Closes reports whether an exit direction matches an open entry direction.
func (d Direction) Closes(entry Direction) bool {
	return (d == CloseLong && entry == Long) || (d == CloseShort && entry == Short)
}

// TimeFilterSpec is the raw time-of-day window on a condition.
type TimeFilterSpec struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone"`
}

// ConditionSpec is one raw entry/exit rule as written in the descriptor.
type ConditionSpec struct {
	Name       string          `json:"name"`
	Direction  Direction       `json:"direction"`
	Expression string          `json:"expression"`
	TimeFilter *TimeFilterSpec `json:"time_filter,omitempty"`
}

// RiskSpec carries sizing and optional price-exit parameters. Either Shares
// or NotionalUSD must be positive; when both are set Shares wins.
// StopLossPct/TakeProfitPct of zero disable the respective price exit.
type RiskSpec struct {
	Shares         decimal.Decimal `json:"shares"`
	NotionalUSD    decimal.Decimal `json:"notional_usd"`
	BandMultiplier float64         `json:"band_multiplier"`
	StopLossPct    float64         `json:"stop_loss_pct"`
	TakeProfitPct  float64         `json:"take_profit_pct"`
}

// Descriptor is the caller-owned strategy document.
type Descriptor struct {
	Symbol          string          `json:"symbol"`
	Timeframe       string          `json:"timeframe"`
	EntryConditions []ConditionSpec `json:"entry_conditions"`
	ExitConditions  []ConditionSpec `json:"exit_conditions"`
	RiskManagement  RiskSpec        `json:"risk_management"`
}

// Parse decodes a descriptor from JSON.
func Parse(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := sonic.Unmarshal(data, &d); err != nil {
		return nil, errors.Wrapf(ErrConfig, "decode strategy: %v", err)
	}
	return &d, nil
}

// Load reads and decodes a descriptor file.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrConfig, "read strategy %s: %v", path, err)
	}
	return Parse(data)
}

// Hash is a stable digest of the descriptor, recorded on run results so a
// signal list can be traced back to the exact strategy that produced it.
func (d *Descriptor) Hash() string {
	data, err := sonic.Marshal(d)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%x", sha256.Sum256(data))
}
