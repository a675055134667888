package domain

import "time"

// SignalActionType discriminates the action a signal rule carries
type SignalActionType string

const (
	// ActionPositionModifier scales computed weights when the condition fires
	ActionPositionModifier SignalActionType = "position_modifier"
	// ActionConditionalGate excludes ranked symbols from target calculation
	// when the condition fires and the rule does not allow them
	ActionConditionalGate SignalActionType = "conditional_gate"
	// ActionDirectTrigger injects a target directly, bypassing the ranking
	ActionDirectTrigger SignalActionType = "direct_trigger"
)

// SideFilter restricts which book a modifier or gate applies to
type SideFilter string

const (
	FilterLong  SideFilter = "long"
	FilterShort SideFilter = "short"
	FilterBoth  SideFilter = "both"
)

// SignalAction is what happens when a rule's condition fires.
// Exactly one action type is used; fields outside the active type are ignored.
type SignalAction struct {
	Type SignalActionType `json:"type"`

	// position_modifier fields; AppliesTo also scopes conditional_gate
	ScaleFactor float64    `json:"scale_factor,omitempty"`
	AppliesTo   SideFilter `json:"applies_to,omitempty"`

	// conditional_gate fields. A gate fires when its condition matches
	// and Allow is false; the scoped symbols are then dropped from the
	// ranked set before targets are computed.
	Allow bool `json:"allow,omitempty"`

	// direct_trigger fields
	Symbol        string    `json:"symbol,omitempty"`
	OrderSide     OrderSide `json:"order_side,omitempty"`
	AllocationPct float64   `json:"allocation_pct,omitempty"`
}

// SignalRule binds a signal reading to an action via a threshold condition.
// Condition follows the restricted grammar "value OP number", e.g. "value < 25".
type SignalRule struct {
	Signal    string       `json:"signal"`
	Condition string       `json:"condition"`
	Action    SignalAction `json:"action"`
}

// SignalReading is one observed value of an external signal
type SignalReading struct {
	AsOf   time.Time `json:"as_of"`
	Signal string    `json:"signal"`
	Value  float64   `json:"value"`
}

// InjectedTarget is a target produced by a direct trigger rule
type InjectedTarget struct {
	Symbol        string    `json:"symbol"`
	Side          OrderSide `json:"side"`
	Reason        string    `json:"reason"`
	AllocationPct float64   `json:"allocation_pct"`
}

// SignalEffects is the folded outcome of evaluating a strategy's signal rules
type SignalEffects struct {
	GateReason string           `json:"gate_reason,omitempty"`
	Injected   []InjectedTarget `json:"injected,omitempty"`
	ScaleLong  float64          `json:"scale_long"`
	ScaleShort float64          `json:"scale_short"`
	GateLong   bool             `json:"gate_long"`
	GateShort  bool             `json:"gate_short"`
}

// Gated reports whether any gate fired
func (e SignalEffects) Gated() bool {
	return e.GateLong || e.GateShort
}

// Excludes reports whether a gate removed the given side from ranking
func (e SignalEffects) Excludes(side Side) bool {
	switch side {
	case SideLong:
		return e.GateLong
	case SideShort:
		return e.GateShort
	default:
		return false
	}
}

// NeutralEffects returns effects that change nothing
func NeutralEffects() SignalEffects {
	return SignalEffects{ScaleLong: 1.0, ScaleShort: 1.0}
}
