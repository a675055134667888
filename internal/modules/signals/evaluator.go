package signals

import (
	"fmt"
	"time"

	"github.com/niq79/trading-bot-sub001/internal/domain"
	"github.com/rs/zerolog"
)

// Service evaluates a strategy's signal rules against current readings
type Service struct {
	log    zerolog.Logger
	maxAge time.Duration
	now    func() time.Time
}

// NewService creates a new signal evaluation service.
// Readings older than maxAge are treated as missing.
func NewService(maxAge time.Duration, log zerolog.Logger) *Service {
	return &Service{
		log:    log.With().Str("service", "signals").Logger(),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Evaluate folds all fired rules into one SignalEffects value.
//
// A rule contributes nothing when its condition fails to parse, its signal
// has no usable reading, or the condition is false. Rule failures never
// fail the evaluation as a whole. Modifiers multiply into the side scales,
// the first gate's reason wins, and triggers keep rule order.
func (s *Service) Evaluate(rules []domain.SignalRule, readings map[string]domain.SignalReading) domain.SignalEffects {
	effects := domain.NeutralEffects()

	for i, rule := range rules {
		cond, err := ParseCondition(rule.Condition)
		if err != nil {
			s.log.Warn().
				Err(err).
				Int("rule", i).
				Str("signal", rule.Signal).
				Msg("Skipping rule with unparseable condition")
			continue
		}

		reading, ok := readings[rule.Signal]
		if !ok {
			s.log.Debug().
				Int("rule", i).
				Str("signal", rule.Signal).
				Msg("Skipping rule, no reading available")
			continue
		}
		if age := s.now().Sub(reading.AsOf); age > s.maxAge {
			s.log.Debug().
				Int("rule", i).
				Str("signal", rule.Signal).
				Dur("age", age).
				Msg("Skipping rule, reading is stale")
			continue
		}

		if !cond.Matches(reading.Value) {
			continue
		}

		s.applyAction(&effects, rule, reading.Value)
	}

	return effects
}

// applyAction folds one fired rule's action into the accumulated effects
func (s *Service) applyAction(effects *domain.SignalEffects, rule domain.SignalRule, value float64) {
	action := rule.Action

	switch action.Type {
	case domain.ActionPositionModifier:
		switch action.AppliesTo {
		case domain.FilterLong:
			effects.ScaleLong *= action.ScaleFactor
		case domain.FilterShort:
			effects.ScaleShort *= action.ScaleFactor
		default: // both
			effects.ScaleLong *= action.ScaleFactor
			effects.ScaleShort *= action.ScaleFactor
		}

	case domain.ActionConditionalGate:
		if action.Allow {
			return
		}
		switch action.AppliesTo {
		case domain.FilterLong:
			effects.GateLong = true
		case domain.FilterShort:
			effects.GateShort = true
		default: // both
			effects.GateLong = true
			effects.GateShort = true
		}
		if effects.GateReason == "" {
			effects.GateReason = fmt.Sprintf("%s %s (value %.2f)", rule.Signal, rule.Condition, value)
		}

	case domain.ActionDirectTrigger:
		effects.Injected = append(effects.Injected, domain.InjectedTarget{
			Symbol:        action.Symbol,
			Side:          action.OrderSide,
			AllocationPct: action.AllocationPct,
			Reason:        fmt.Sprintf("signal trigger: %s %s", rule.Signal, rule.Condition),
		})

	default:
		s.log.Warn().
			Str("signal", rule.Signal).
			Str("action_type", string(action.Type)).
			Msg("Skipping rule with unknown action type")
	}
}
