package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/niq79/trading-bot-sub001/internal/domain"
	"github.com/niq79/trading-bot-sub001/internal/events"
)

// execute runs one strategy through the full pipeline:
// Pending -> Fetching -> Computing -> Submitting|Skipped -> Recorded|Failed.
// Every transition is persisted and published before the next step runs.
// dryRun forces a dry run even when the strategy itself is live.
func (o *Orchestrator) execute(ctx context.Context, tenant domain.Tenant, cfg domain.StrategyConfig, dryRun bool) *domain.RunResult {
	runCtx, cancel := context.WithTimeout(ctx, o.cfg.RunTimeout)
	defer cancel()

	dryRun = dryRun || cfg.DryRun

	result := &domain.RunResult{
		RunID:             uuid.New().String(),
		TenantID:          tenant.ID,
		StrategyID:        cfg.ID,
		State:             domain.RunPending,
		DryRun:            dryRun,
		Ranked:            []domain.RankedSymbol{},
		Targets:           []domain.Target{},
		Orders:            []domain.Order{},
		SubmittedOrderIDs: []string{},
		StartedAt:         time.Now().UTC(),
	}

	log := o.log.With().
		Str("run_id", result.RunID).
		Str("tenant_id", tenant.ID).
		Str("strategy_id", cfg.ID).
		Logger()
	log.Info().Str("strategy", cfg.Name).Bool("dry_run", dryRun).Msg("Run started")

	o.recorder.transition(result, domain.RunPending)

	broker := o.brokerFactory(tenant)

	// Fetching: account, positions, bars, signal readings
	o.recorder.transition(result, domain.RunFetching)

	account, err := broker.GetAccount(runCtx)
	if err != nil {
		return o.recorder.fail(result, fmt.Errorf("failed to fetch account: %w", err))
	}
	result.Equity = account.Equity

	positions, err := broker.GetPositions(runCtx)
	if err != nil {
		return o.recorder.fail(result, fmt.Errorf("failed to fetch positions: %w", err))
	}

	bars, err := o.marketData.GetBars(runCtx, cfg.Universe, cfg.LookbackBars)
	if err != nil {
		return o.recorder.fail(result, fmt.Errorf("failed to fetch bars: %w", err))
	}

	readings := o.gatherReadings(runCtx, cfg.SignalRules)

	// Computing: rank, evaluate signals, size targets, plan orders
	o.recorder.transition(result, domain.RunComputing)

	ranked, err := o.ranking.RankUniverse(cfg, bars)
	if err != nil {
		return o.recorder.fail(result, fmt.Errorf("ranking failed: %w", err))
	}
	result.Ranked = ranked

	// A fired gate excludes its side of the ranked set before targets
	// are sized; excluded symbols end up with no target, so existing
	// positions in them are traded toward zero like any other drop-out.
	effects := o.signals.Evaluate(cfg.SignalRules, readings)
	adjusted := ranked
	if effects.Gated() {
		result.GateReason = effects.GateReason
		adjusted = applyGates(ranked, effects)
		o.bus.Emit(events.SignalGateFired, "orchestrator", &events.SignalGateFiredData{
			RunID:      result.RunID,
			StrategyID: cfg.ID,
			Reason:     effects.GateReason,
		})
		log.Info().
			Str("reason", effects.GateReason).
			Int("excluded", len(ranked)-len(adjusted)).
			Msg("Signal gate fired, symbols excluded from targets")
	}

	targets, err := o.targets.ComputeTargets(cfg, adjusted, effects, account.Equity)
	if err != nil {
		return o.recorder.fail(result, fmt.Errorf("target computation failed: %w", err))
	}
	result.Targets = targets

	orders := o.rebalancing.PlanOrders(cfg, targets, positions)
	result.Orders = orders
	o.emitOrdersPlanned(result)

	// Dry runs record their plan without touching the broker
	if dryRun {
		o.recorder.transition(result, domain.RunSkipped)
		o.recorder.complete(result)
		log.Info().Int("orders", len(orders)).Msg("Run recorded without submission")
		return result
	}

	// Submitting: sequential; a rejected order is recorded and the
	// rest still go out. Only the run deadline stops the loop.
	o.recorder.transition(result, domain.RunSubmitting)

	submitted := 0
	for _, order := range orders {
		if runCtx.Err() != nil {
			o.emitOrdersSubmitted(result, submitted, len(orders)-submitted)
			result.Partial = true
			return o.recorder.fail(result, fmt.Errorf("run timed out during submission: %w", runCtx.Err()))
		}

		orderID, err := broker.SubmitOrder(runCtx, order)
		if err != nil {
			result.Partial = true
			result.OrderErrors = append(result.OrderErrors,
				fmt.Sprintf("failed to submit %s order for %s: %v", order.Side, order.Symbol, err))
			log.Error().Err(err).Str("symbol", order.Symbol).Msg("Order submit failed, continuing with remaining orders")
			continue
		}
		submitted++
		result.SubmittedOrderIDs = append(result.SubmittedOrderIDs, orderID)

		if err := o.recorder.recordSubmitted(result, order, orderID); err != nil {
			log.Warn().Err(err).Str("symbol", order.Symbol).Msg("Failed to record submitted order")
		}
	}
	o.emitOrdersSubmitted(result, submitted, len(result.OrderErrors))

	o.recorder.complete(result)
	log.Info().
		Int("orders", len(orders)).
		Int("submitted", submitted).
		Int("rejected", len(result.OrderErrors)).
		Bool("partial", result.Partial).
		Msg("Run finished")
	return result
}

// applyGates drops ranked symbols whose side a gate excluded
func applyGates(ranked []domain.RankedSymbol, effects domain.SignalEffects) []domain.RankedSymbol {
	kept := make([]domain.RankedSymbol, 0, len(ranked))
	for _, r := range ranked {
		if effects.Excludes(r.Side) {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

// gatherReadings fetches each distinct signal the rules reference.
// A failed fetch skips just that signal's conditions, never the run.
func (o *Orchestrator) gatherReadings(ctx context.Context, rules []domain.SignalRule) map[string]domain.SignalReading {
	readings := make(map[string]domain.SignalReading)

	for _, rule := range rules {
		if _, done := readings[rule.Signal]; done {
			continue
		}

		reading, err := o.signalProvider.GetReading(ctx, rule.Signal)
		if err != nil {
			o.log.Warn().
				Err(err).
				Str("signal", rule.Signal).
				Msg("Failed to fetch signal reading, its conditions will be skipped")
			continue
		}
		if reading != nil {
			readings[rule.Signal] = *reading
		}
	}
	return readings
}

func (o *Orchestrator) emitOrdersPlanned(result *domain.RunResult) {
	buys, sells, notional := 0, 0, 0.0
	for _, order := range result.Orders {
		if order.Side == domain.OrderBuy {
			buys++
		} else {
			sells++
		}
		notional += order.Notional
	}

	o.bus.Emit(events.OrdersPlanned, "orchestrator", &events.OrdersPlannedData{
		RunID:      result.RunID,
		StrategyID: result.StrategyID,
		Orders:     len(result.Orders),
		BuyCount:   buys,
		SellCount:  sells,
		Notional:   notional,
	})
}

func (o *Orchestrator) emitOrdersSubmitted(result *domain.RunResult, submitted, failed int) {
	o.bus.Emit(events.OrdersSubmitted, "orchestrator", &events.OrdersSubmittedData{
		RunID:     result.RunID,
		TenantID:  result.TenantID,
		Submitted: submitted,
		Failed:    failed,
	})
}
