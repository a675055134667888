package rebalancing

import (
	"math"
	"strings"
	"testing"

	"github.com/niq79/trading-bot-sub001/internal/domain"
	"github.com/rs/zerolog"
)

const epsilon = 1e-9

func planConfig() domain.StrategyConfig {
	return domain.StrategyConfig{
		RebalanceFraction: 1.0,
		DustFloor:         1.0,
	}
}

func target(symbol string, value float64) domain.Target {
	return domain.Target{Symbol: symbol, Value: value, Source: domain.TargetFromRanking}
}

func position(symbol string, value float64) domain.CurrentPosition {
	return domain.CurrentPosition{Symbol: symbol, MarketValue: value}
}

func TestPlanOrdersBuysAndSells(t *testing.T) {
	svc := NewService(zerolog.Nop())

	targets := []domain.Target{
		target("AAA", 30000),
		target("BBB", 30000),
	}
	positions := []domain.CurrentPosition{
		position("AAA", 10000),
		position("BBB", 50000),
	}

	orders := svc.PlanOrders(planConfig(), targets, positions)

	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}

	// Sells come first
	if orders[0].Symbol != "BBB" || orders[0].Side != domain.OrderSell {
		t.Errorf("first order = %+v, want BBB sell", orders[0])
	}
	if math.Abs(orders[0].Notional-20000) > epsilon {
		t.Errorf("BBB notional = %g, want 20000", orders[0].Notional)
	}
	if orders[1].Symbol != "AAA" || orders[1].Side != domain.OrderBuy {
		t.Errorf("second order = %+v, want AAA buy", orders[1])
	}
	if math.Abs(orders[1].Notional-20000) > epsilon {
		t.Errorf("AAA notional = %g, want 20000", orders[1].Notional)
	}

	for _, o := range orders {
		if o.Notional <= 0 {
			t.Errorf("order %s notional = %g, must be positive", o.Symbol, o.Notional)
		}
	}
}

func TestPlanOrdersIdempotentAtTarget(t *testing.T) {
	svc := NewService(zerolog.Nop())

	targets := []domain.Target{
		target("AAA", 25000),
		target("ZZZ", -10000),
	}
	positions := []domain.CurrentPosition{
		position("AAA", 25000),
		position("ZZZ", -10000),
	}

	orders := svc.PlanOrders(planConfig(), targets, positions)

	if len(orders) != 0 {
		t.Errorf("portfolio already at target should plan no orders, got %+v", orders)
	}
}

func TestPlanOrdersDustFloor(t *testing.T) {
	svc := NewService(zerolog.Nop())
	cfg := planConfig()
	cfg.DustFloor = 500

	targets := []domain.Target{
		target("AAA", 10300), // delta 300, below floor
		target("BBB", 11000), // delta 1000, above floor
	}
	positions := []domain.CurrentPosition{
		position("AAA", 10000),
		position("BBB", 10000),
	}

	orders := svc.PlanOrders(cfg, targets, positions)

	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	if orders[0].Symbol != "BBB" {
		t.Errorf("dust-floored symbol traded: %+v", orders[0])
	}
}

func TestPlanOrdersRebalanceFraction(t *testing.T) {
	svc := NewService(zerolog.Nop())
	cfg := planConfig()
	cfg.RebalanceFraction = 0.5

	targets := []domain.Target{target("AAA", 20000)}
	positions := []domain.CurrentPosition{position("AAA", 10000)}

	orders := svc.PlanOrders(cfg, targets, positions)

	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	if math.Abs(orders[0].Notional-5000) > epsilon {
		t.Errorf("notional = %g, want half the 10000 gap", orders[0].Notional)
	}
}

func TestPlanOrdersClosesUntargetedPositions(t *testing.T) {
	svc := NewService(zerolog.Nop())

	targets := []domain.Target{target("AAA", 20000)}
	positions := []domain.CurrentPosition{
		position("AAA", 20000),
		position("OLD", 7500),
	}

	orders := svc.PlanOrders(planConfig(), targets, positions)

	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	o := orders[0]
	if o.Symbol != "OLD" || o.Side != domain.OrderSell {
		t.Errorf("order = %+v, want OLD sell", o)
	}
	if math.Abs(o.Notional-7500) > epsilon {
		t.Errorf("notional = %g, want 7500", o.Notional)
	}
	if !strings.Contains(o.Reason, "no target") {
		t.Errorf("reason = %q, want close reason", o.Reason)
	}
}

func TestPlanOrdersShortReasons(t *testing.T) {
	svc := NewService(zerolog.Nop())

	tests := []struct {
		name       string
		target     *domain.Target
		current    float64
		wantSide   domain.OrderSide
		wantsShort bool
	}{
		{"open short from flat", &domain.Target{Symbol: "S", Value: -10000}, 0, domain.OrderSell, true},
		{"increase short", &domain.Target{Symbol: "S", Value: -20000}, -10000, domain.OrderSell, true},
		{"reduce short", &domain.Target{Symbol: "S", Value: -5000}, -10000, domain.OrderBuy, true},
		{"long increase stays quiet", &domain.Target{Symbol: "S", Value: 20000}, 10000, domain.OrderBuy, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var targets []domain.Target
			if tt.target != nil {
				targets = []domain.Target{*tt.target}
			}
			positions := []domain.CurrentPosition{position("S", tt.current)}

			orders := svc.PlanOrders(planConfig(), targets, positions)

			if len(orders) != 1 {
				t.Fatalf("expected 1 order, got %d", len(orders))
			}
			o := orders[0]
			if o.Side != tt.wantSide {
				t.Errorf("side = %q, want %q", o.Side, tt.wantSide)
			}
			hasShort := strings.Contains(o.Reason, "short")
			if hasShort != tt.wantsShort {
				t.Errorf("reason = %q, mention of short = %v, want %v", o.Reason, hasShort, tt.wantsShort)
			}
		})
	}
}

func TestPlanOrdersSideFlipIsSingleOrder(t *testing.T) {
	svc := NewService(zerolog.Nop())

	// Long 10k must become short 5k: one 15k sell nets it
	targets := []domain.Target{target("AAA", -5000)}
	positions := []domain.CurrentPosition{position("AAA", 10000)}

	orders := svc.PlanOrders(planConfig(), targets, positions)

	if len(orders) != 1 {
		t.Fatalf("side flip must be one netting order, got %d", len(orders))
	}
	o := orders[0]
	if o.Side != domain.OrderSell {
		t.Errorf("side = %q, want sell", o.Side)
	}
	if math.Abs(o.Notional-15000) > epsilon {
		t.Errorf("notional = %g, want 15000", o.Notional)
	}
	if !strings.Contains(o.Reason, "short") {
		t.Errorf("flip into short reason = %q, must mention short", o.Reason)
	}
}

func TestPlanOrdersSignalTargetReason(t *testing.T) {
	svc := NewService(zerolog.Nop())

	targets := []domain.Target{
		{Symbol: "GLD", Value: 10000, Source: domain.TargetFromSignal},
	}

	orders := svc.PlanOrders(planConfig(), targets, nil)

	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	if !strings.Contains(orders[0].Reason, "signal") {
		t.Errorf("reason = %q, want signal provenance", orders[0].Reason)
	}
}

func TestPlanOrdersDeterministicOrdering(t *testing.T) {
	svc := NewService(zerolog.Nop())

	targets := []domain.Target{
		target("DDD", 10000),
		target("AAA", 10000),
		target("CCC", -10000),
		target("BBB", -10000),
	}

	for i := 0; i < 3; i++ {
		orders := svc.PlanOrders(planConfig(), targets, nil)
		if len(orders) != 4 {
			t.Fatalf("expected 4 orders, got %d", len(orders))
		}
		got := []string{orders[0].Symbol, orders[1].Symbol, orders[2].Symbol, orders[3].Symbol}
		want := []string{"BBB", "CCC", "AAA", "DDD"} // sells (sorted), then buys (sorted)
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("order sequence = %v, want %v", got, want)
			}
		}
	}
}

func TestPlanOrdersZeroFractionOfNothing(t *testing.T) {
	svc := NewService(zerolog.Nop())
	cfg := planConfig()
	cfg.DustFloor = 0

	// Exact match with zero dust floor still yields no orders
	targets := []domain.Target{target("AAA", 12345.67)}
	positions := []domain.CurrentPosition{position("AAA", 12345.67)}

	orders := svc.PlanOrders(cfg, targets, positions)
	if len(orders) != 0 {
		t.Errorf("expected no orders at exact target, got %+v", orders)
	}
}
