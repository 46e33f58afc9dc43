package strategy

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/mdthewzrd/wzrd-algo-sub001/services/rules"
	"github.com/mdthewzrd/wzrd-algo-sub001/services/timeframe"
)

// Condition is one compiled entry/exit rule: parsed expression tree plus an
// optional time-of-day gate. Read-only during evaluation.
type Condition struct {
	Name      string
	Direction Direction
	Rule      *rules.Rule
	Filter    *rules.TimeFilter
}

// Eval evaluates the condition for a row. Outside the time window the
// condition is false regardless of the expression.
func (c *Condition) Eval(row, prev *timeframe.FeatureRow, stats *rules.Stats) bool {
	if c.Filter != nil && !c.Filter.Contains(row.Bar.Timestamp) {
		return false
	}
	return c.Rule.Eval(row, prev, stats)
}

// Crossover reports whether the rule carries crossover semantics.
func (c *Condition) Crossover() bool { return c.Rule.Crossover() }

// Compiled is a fully validated strategy, ready for a scan. It also carries
// the feature plan the aligner must materialize for its expressions.
type Compiled struct {
	Symbol     string
	BaseStepMs int64
	Entries    []Condition
	Exits      []Condition
	Plan       *timeframe.Plan
	Risk       RiskSpec
	Hash       string
}

// Compile validates the descriptor and parses every expression once.
// All failures here are configuration errors; nothing row-level can fail
// later because of the descriptor.
func (d *Descriptor) Compile() (*Compiled, error) {
	if d.Symbol == "" {
		return nil, errors.Wrap(ErrConfig, "symbol is required")
	}
	baseStep, err := timeframe.Parse(d.Timeframe)
	if err != nil {
		return nil, errors.Wrapf(ErrConfig, "timeframe: %v", err)
	}
	if len(d.EntryConditions) == 0 {
		return nil, errors.Wrap(ErrConfig, "at least one entry condition is required")
	}
	if d.RiskManagement.Shares.Sign() <= 0 && d.RiskManagement.NotionalUSD.Sign() <= 0 {
		return nil, errors.Wrap(ErrConfig, "risk_management needs positive shares or notional_usd")
	}
	if d.RiskManagement.StopLossPct < 0 || d.RiskManagement.TakeProfitPct < 0 {
		return nil, errors.Wrap(ErrConfig, "stop_loss_pct/take_profit_pct must not be negative")
	}

	plan := timeframe.NewPlan(baseStep)
	if d.RiskManagement.BandMultiplier > 0 {
		plan.BandMult = d.RiskManagement.BandMultiplier
	}

	c := &Compiled{
		Symbol:     d.Symbol,
		BaseStepMs: baseStep,
		Plan:       plan,
		Risk:       d.RiskManagement,
		Hash:       d.Hash(),
	}

	c.Entries, err = compileConditions(d.EntryConditions, plan, true)
	if err != nil {
		return nil, err
	}
	c.Exits, err = compileConditions(d.ExitConditions, plan, false)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func compileConditions(specs []ConditionSpec, plan *timeframe.Plan, entry bool) ([]Condition, error) {
	out := make([]Condition, 0, len(specs))
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, errors.Wrapf(ErrConfig, "condition with expression %q has no name", spec.Expression)
		}
		if entry && spec.Direction != Long && spec.Direction != Short {
			return nil, errors.Wrapf(ErrConfig, "entry condition %q: direction must be long or short, got %q", spec.Name, spec.Direction)
		}
		if !entry && spec.Direction != CloseLong && spec.Direction != CloseShort {
			return nil, errors.Wrapf(ErrConfig, "exit condition %q: direction must be close_long or close_short, got %q", spec.Name, spec.Direction)
		}

		rule, err := rules.Parse(spec.Expression, plan)
		if err != nil {
			return nil, errors.Wrapf(ErrConfig, "condition %q: %v", spec.Name, err)
		}

		var filter *rules.TimeFilter
		if spec.TimeFilter != nil {
			filter, err = rules.NewTimeFilter(spec.TimeFilter.Start, spec.TimeFilter.End, spec.TimeFilter.Timezone)
			if err != nil {
				return nil, errors.Wrapf(ErrConfig, "condition %q: %v", spec.Name, err)
			}
		}
		out = append(out, Condition{Name: spec.Name, Direction: spec.Direction, Rule: rule, Filter: filter})
	}
	return out, nil
}

// SharesFor resolves position size at an entry price: explicit shares win,
// otherwise notional divided by price.
func (r RiskSpec) SharesFor(price decimal.Decimal) decimal.Decimal {
	if r.Shares.Sign() > 0 {
		return r.Shares
	}
	if price.Sign() <= 0 {
		return decimal.Zero
	}
	return r.NotionalUSD.DivRound(price, 8)
}
