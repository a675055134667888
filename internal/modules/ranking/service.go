// Package ranking orders a strategy's universe by a configurable metric
// and splits the result into long and short books.
package ranking

import (
	"fmt"
	"sort"

	"github.com/niq79/trading-bot-sub001/internal/domain"
	"github.com/niq79/trading-bot-sub001/internal/modules/ranking/indicators"
	"github.com/rs/zerolog"
)

// minBarsFloor is the absolute minimum bar count for any metric.
// Symbols with less history than this are skipped regardless of metric.
const minBarsFloor = 5

// smaWindowMax caps the moving average window used by the slope metrics
const smaWindowMax = 10

// Service computes ranked universes
type Service struct {
	log zerolog.Logger
}

// NewService creates a new ranking service
func NewService(log zerolog.Logger) *Service {
	return &Service{
		log: log.With().Str("service", "ranking").Logger(),
	}
}

// scored is an intermediate symbol/score pair before side assignment
type scored struct {
	symbol string
	score  float64
}

// RankUniverse scores every symbol in the strategy's universe and assigns
// the top LongCount to the long book and, from the remaining symbols, the
// bottom ShortCount to the short book. Symbols with insufficient history
// or non-finite scores are skipped. The result is sorted by rank; symbols
// on neither book are not included.
func (s *Service) RankUniverse(cfg domain.StrategyConfig, bars map[string][]domain.Bar) ([]domain.RankedSymbol, error) {
	scores := make([]scored, 0, len(cfg.Universe))

	for _, symbol := range cfg.Universe {
		closes := lastCloses(bars[symbol], cfg.LookbackBars)

		score, err := s.computeMetric(cfg.Metric, closes)
		if err != nil {
			return nil, fmt.Errorf("ranking %s: %w", symbol, err)
		}
		if score == nil {
			s.log.Debug().
				Str("symbol", symbol).
				Str("metric", string(cfg.Metric)).
				Int("bars", len(closes)).
				Msg("Symbol skipped, metric not computable")
			continue
		}

		scores = append(scores, scored{symbol: symbol, score: *score})
	}

	if len(scores) == 0 {
		return []domain.RankedSymbol{}, nil
	}

	// Best score first; ties broken by symbol for determinism
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].symbol < scores[j].symbol
	})

	longN := cfg.LongCount
	if longN > len(scores) {
		longN = len(scores)
	}
	shortN := cfg.ShortCount
	if remaining := len(scores) - longN; shortN > remaining {
		shortN = remaining
	}

	ranked := make([]domain.RankedSymbol, 0, longN+shortN)
	for i := 0; i < longN; i++ {
		ranked = append(ranked, domain.RankedSymbol{
			Symbol: scores[i].symbol,
			Score:  scores[i].score,
			Rank:   i + 1,
			Side:   domain.SideLong,
		})
	}
	for i := len(scores) - shortN; i < len(scores); i++ {
		ranked = append(ranked, domain.RankedSymbol{
			Symbol: scores[i].symbol,
			Score:  scores[i].score,
			Rank:   i + 1,
			Side:   domain.SideShort,
		})
	}

	return ranked, nil
}

// computeMetric returns the metric value for one symbol's closes,
// or nil when the metric cannot be computed from the available history.
func (s *Service) computeMetric(metric domain.Metric, closes []float64) (*float64, error) {
	if len(closes) < minBarsFloor {
		return nil, nil
	}

	switch metric {
	case domain.MetricReturn:
		return indicators.TotalReturn(closes), nil

	case domain.MetricSMASlope:
		return indicators.NormalizedSlope(indicators.SMASeries(closes, maWindow(len(closes)))), nil

	case domain.MetricEMASlope:
		return indicators.NormalizedSlope(indicators.EMASeries(closes, maWindow(len(closes)))), nil

	case domain.MetricRSI:
		return indicators.RSI(closes, domain.RSIPeriod()), nil

	default:
		return nil, fmt.Errorf("unknown metric %q", metric)
	}
}

// maWindow picks the moving average window for the slope metrics
func maWindow(n int) int {
	w := n / 2
	if w > smaWindowMax {
		w = smaWindowMax
	}
	if w < 2 {
		w = 2
	}
	return w
}

// lastCloses extracts up to limit closing prices from the end of the bars
func lastCloses(bars []domain.Bar, limit int) []float64 {
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}
