// Package rebalancing plans the orders that move a portfolio toward its targets.
package rebalancing

import (
	"math"
	"sort"

	"github.com/niq79/trading-bot-sub001/internal/domain"
	"github.com/rs/zerolog"
)

// valueEpsilon treats tiny notional values as zero when classifying exposure
const valueEpsilon = 1e-9

// Service plans rebalancing orders
type Service struct {
	log zerolog.Logger
}

// NewService creates a new rebalancing service
func NewService(log zerolog.Logger) *Service {
	return &Service{
		log: log.With().Str("service", "rebalancing").Logger(),
	}
}

// PlanOrders diffs targets against current positions and emits the orders
// that close a configurable fraction of each gap.
//
// A position with no target is traded toward zero. Deltas below the dust
// floor are skipped. A side flip is a single netting order. Sells come
// before buys so sales free the cash the buys need.
func (s *Service) PlanOrders(cfg domain.StrategyConfig, targets []domain.Target, positions []domain.CurrentPosition) []domain.Order {
	current := make(map[string]float64, len(positions))
	for _, p := range positions {
		current[p.Symbol] = p.MarketValue
	}

	targetBySymbol := make(map[string]*domain.Target, len(targets))
	symbols := make([]string, 0, len(targets)+len(positions))
	for i := range targets {
		targetBySymbol[targets[i].Symbol] = &targets[i]
		symbols = append(symbols, targets[i].Symbol)
	}
	for _, p := range positions {
		if _, ok := targetBySymbol[p.Symbol]; !ok {
			symbols = append(symbols, p.Symbol)
		}
	}

	orders := make([]domain.Order, 0, len(symbols))

	for _, symbol := range symbols {
		currentValue := current[symbol]

		var targetValue float64
		tgt := targetBySymbol[symbol]
		if tgt != nil {
			targetValue = tgt.Value
		}

		delta := (targetValue - currentValue) * cfg.RebalanceFraction

		if math.Abs(delta) < cfg.DustFloor || math.Abs(delta) < valueEpsilon {
			if delta != 0 {
				s.log.Debug().
					Str("symbol", symbol).
					Float64("delta", delta).
					Float64("dust_floor", cfg.DustFloor).
					Msg("Delta below dust floor, skipping")
			}
			continue
		}

		side := domain.OrderBuy
		if delta < 0 {
			side = domain.OrderSell
		}

		orders = append(orders, domain.Order{
			Symbol:   symbol,
			Side:     side,
			Notional: math.Abs(delta),
			Reason:   orderReason(currentValue, currentValue+delta, tgt),
		})
	}

	// Sells first to free cash, then buys; symbol order within each group
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].Side != orders[j].Side {
			return orders[i].Side == domain.OrderSell
		}
		return orders[i].Symbol < orders[j].Symbol
	})

	return orders
}

// orderReason describes why an order exists. Any order that opens or
// increases short exposure must name the short side explicitly.
func orderReason(currentValue, newValue float64, tgt *domain.Target) string {
	var reason string

	switch {
	case newValue < -valueEpsilon && currentValue > valueEpsilon:
		reason = "flip long to short position"
	case newValue < -valueEpsilon && currentValue >= -valueEpsilon:
		reason = "open short position"
	case newValue < currentValue && currentValue < -valueEpsilon:
		reason = "increase short position"
	case currentValue < -valueEpsilon && newValue > valueEpsilon:
		reason = "flip short to long position"
	case currentValue < -valueEpsilon:
		reason = "reduce short position"
	case tgt == nil:
		return "close position, no target"
	default:
		reason = "rebalance toward target"
	}

	if tgt != nil && tgt.Source == domain.TargetFromSignal {
		reason += " (signal target)"
	}
	return reason
}
