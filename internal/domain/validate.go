package domain

import "fmt"

// knownMetrics is the set of metrics the ranker can compute
var knownMetrics = map[Metric]bool{
	MetricReturn:   true,
	MetricSMASlope: true,
	MetricEMASlope: true,
	MetricRSI:      true,
}

// rsiPeriod is the fixed RSI period used by the ranker
const rsiPeriod = 14

// RSIPeriod returns the RSI period used for the rsi metric
func RSIPeriod() int { return rsiPeriod }

// Validate checks a strategy configuration for structural correctness.
// Signal rule conditions are validated separately by the rules parser.
func (c *StrategyConfig) Validate() error {
	if c.TenantID == "" {
		return fmt.Errorf("strategy %q: tenant_id is required", c.Name)
	}
	if c.Name == "" {
		return fmt.Errorf("strategy name is required")
	}
	if !knownMetrics[c.Metric] {
		return fmt.Errorf("strategy %q: unknown metric %q", c.Name, c.Metric)
	}
	if len(c.Universe) == 0 {
		return fmt.Errorf("strategy %q: universe is empty", c.Name)
	}
	if c.LookbackBars < 2 {
		return fmt.Errorf("strategy %q: lookback_bars must be at least 2, got %d", c.Name, c.LookbackBars)
	}
	if c.Metric == MetricRSI && c.LookbackBars <= rsiPeriod {
		return fmt.Errorf("strategy %q: lookback_bars must exceed the RSI period %d, got %d", c.Name, rsiPeriod, c.LookbackBars)
	}
	if c.LongCount < 0 || c.ShortCount < 0 {
		return fmt.Errorf("strategy %q: long_count and short_count must be non-negative", c.Name)
	}
	if c.LongCount+c.ShortCount == 0 {
		return fmt.Errorf("strategy %q: long_count + short_count must be positive", c.Name)
	}
	if c.LongCount+c.ShortCount > len(c.Universe) {
		return fmt.Errorf("strategy %q: long_count + short_count (%d) exceeds universe size (%d)",
			c.Name, c.LongCount+c.ShortCount, len(c.Universe))
	}
	if c.MaxWeightPerSymbol <= 0 || c.MaxWeightPerSymbol > 1 {
		return fmt.Errorf("strategy %q: max_weight_per_symbol must be in (0, 1], got %g", c.Name, c.MaxWeightPerSymbol)
	}
	if c.CashReservePct < 0 || c.CashReservePct >= 1 {
		return fmt.Errorf("strategy %q: cash_reserve_pct must be in [0, 1), got %g", c.Name, c.CashReservePct)
	}
	if c.RebalanceFraction <= 0 || c.RebalanceFraction > 1 {
		return fmt.Errorf("strategy %q: rebalance_fraction must be in (0, 1], got %g", c.Name, c.RebalanceFraction)
	}
	if c.DustFloor < 0 {
		return fmt.Errorf("strategy %q: dust_floor must be non-negative, got %g", c.Name, c.DustFloor)
	}
	for i := range c.SignalRules {
		if err := c.SignalRules[i].Validate(); err != nil {
			return fmt.Errorf("strategy %q: rule %d: %w", c.Name, i, err)
		}
	}
	return nil
}

// Validate checks a signal rule's structure. The condition grammar itself
// is checked by the signals package.
func (r *SignalRule) Validate() error {
	if r.Signal == "" {
		return fmt.Errorf("signal name is required")
	}
	if r.Condition == "" {
		return fmt.Errorf("condition is required")
	}
	return r.Action.Validate()
}

// Validate checks that exactly the fields of the active action type are set
func (a *SignalAction) Validate() error {
	switch a.Type {
	case ActionPositionModifier:
		if a.ScaleFactor <= 0 {
			return fmt.Errorf("position_modifier: scale_factor must be positive, got %g", a.ScaleFactor)
		}
		switch a.AppliesTo {
		case FilterLong, FilterShort, FilterBoth, "":
		default:
			return fmt.Errorf("position_modifier: unknown applies_to %q", a.AppliesTo)
		}
	case ActionConditionalGate:
		switch a.AppliesTo {
		case FilterLong, FilterShort, FilterBoth, "":
		default:
			return fmt.Errorf("conditional_gate: unknown applies_to %q", a.AppliesTo)
		}
	case ActionDirectTrigger:
		if a.Symbol == "" {
			return fmt.Errorf("direct_trigger: symbol is required")
		}
		if a.OrderSide != OrderBuy && a.OrderSide != OrderSell {
			return fmt.Errorf("direct_trigger: order_side must be buy or sell, got %q", a.OrderSide)
		}
		if a.AllocationPct <= 0 || a.AllocationPct > 1 {
			return fmt.Errorf("direct_trigger: allocation_pct must be in (0, 1], got %g", a.AllocationPct)
		}
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	return nil
}
