// Package targets turns a ranked universe into desired portfolio weights.
package targets

import (
	"fmt"

	"github.com/niq79/trading-bot-sub001/internal/domain"
	"github.com/rs/zerolog"
)

// Service computes target weights and notional values
type Service struct {
	log zerolog.Logger
}

// NewService creates a new target calculation service
func NewService(log zerolog.Logger) *Service {
	return &Service{
		log: log.With().Str("service", "targets").Logger(),
	}
}

// ComputeTargets converts ranked symbols plus signal effects into signed
// target weights and values.
//
// Each side splits the investable fraction (1 - cash reserve) equally
// among its members, clipped per symbol to the configured cap. Clipped
// excess stays in cash. Side scale factors from signal modifiers apply
// after the cap. Injected targets from direct triggers override ranked
// targets for the same symbol and are never capped.
func (s *Service) ComputeTargets(
	cfg domain.StrategyConfig,
	ranked []domain.RankedSymbol,
	effects domain.SignalEffects,
	totalEquity float64,
) ([]domain.Target, error) {
	if totalEquity <= 0 {
		return nil, fmt.Errorf("total equity must be positive, got %g", totalEquity)
	}

	investable := 1 - cfg.CashReservePct

	longCount, shortCount := 0, 0
	for _, r := range ranked {
		switch r.Side {
		case domain.SideLong:
			longCount++
		case domain.SideShort:
			shortCount++
		}
	}

	result := make([]domain.Target, 0, len(ranked)+len(effects.Injected))
	index := make(map[string]int, len(ranked))

	for _, r := range ranked {
		var weight float64
		switch r.Side {
		case domain.SideLong:
			weight = investable / float64(longCount)
		case domain.SideShort:
			weight = -investable / float64(shortCount)
		default:
			continue
		}

		weight = clip(weight, cfg.MaxWeightPerSymbol)

		if r.Side == domain.SideLong {
			weight *= effects.ScaleLong
		} else {
			weight *= effects.ScaleShort
		}

		index[r.Symbol] = len(result)
		result = append(result, domain.Target{
			Symbol: r.Symbol,
			Weight: weight,
			Source: domain.TargetFromRanking,
		})
	}

	// Direct triggers override ranked targets and bypass the cap
	for _, inj := range effects.Injected {
		weight := inj.AllocationPct
		if inj.Side == domain.OrderSell {
			weight = -weight
		}

		target := domain.Target{
			Symbol: inj.Symbol,
			Weight: weight,
			Source: domain.TargetFromSignal,
		}

		if pos, ok := index[inj.Symbol]; ok {
			s.log.Debug().
				Str("symbol", inj.Symbol).
				Float64("ranked_weight", result[pos].Weight).
				Float64("injected_weight", weight).
				Msg("Signal trigger overrides ranked target")
			result[pos] = target
			continue
		}

		index[inj.Symbol] = len(result)
		result = append(result, target)
	}

	for i := range result {
		result[i].Value = result[i].Weight * totalEquity
	}

	return result, nil
}

// clip limits the magnitude of a signed weight to cap
func clip(weight, cap float64) float64 {
	if weight > cap {
		return cap
	}
	if weight < -cap {
		return -cap
	}
	return weight
}
