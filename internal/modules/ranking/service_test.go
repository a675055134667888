package ranking

import (
	"testing"
	"time"

	"github.com/niq79/trading-bot-sub001/internal/domain"
	"github.com/rs/zerolog"
)

func barsFromCloses(closes ...float64) []domain.Bar {
	bars := make([]domain.Bar, len(closes))
	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		bars[i] = domain.Bar{Timestamp: base.AddDate(0, 0, i), Close: c}
	}
	return bars
}

// trend builds n bars drifting from start by step per bar
func trend(start, step float64, n int) []domain.Bar {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = start + step*float64(i)
	}
	return barsFromCloses(closes...)
}

func testConfig() domain.StrategyConfig {
	return domain.StrategyConfig{
		ID:           "strat-1",
		TenantID:     "tenant-1",
		Name:         "momentum",
		Metric:       domain.MetricReturn,
		Universe:     []string{"AAA", "BBB", "CCC", "DDD"},
		LookbackBars: 10,
		LongCount:    2,
		ShortCount:   1,
	}
}

func TestRankUniverseReturnMetric(t *testing.T) {
	svc := NewService(zerolog.Nop())
	cfg := testConfig()

	bars := map[string][]domain.Bar{
		"AAA": trend(100, 1, 10),  // +9%
		"BBB": trend(100, 3, 10),  // +27%
		"CCC": trend(100, -1, 10), // -9%
		"DDD": trend(100, 0.5, 10),
	}

	ranked, err := svc.RankUniverse(cfg, bars)
	if err != nil {
		t.Fatalf("RankUniverse error: %v", err)
	}

	if len(ranked) != 3 {
		t.Fatalf("expected 3 ranked symbols (2 long + 1 short), got %d", len(ranked))
	}

	// Longs: BBB best, then AAA
	if ranked[0].Symbol != "BBB" || ranked[0].Rank != 1 || ranked[0].Side != domain.SideLong {
		t.Errorf("rank 1 = %+v, want BBB long", ranked[0])
	}
	if ranked[1].Symbol != "AAA" || ranked[1].Rank != 2 || ranked[1].Side != domain.SideLong {
		t.Errorf("rank 2 = %+v, want AAA long", ranked[1])
	}
	// Short: CCC is worst of the 4
	if ranked[2].Symbol != "CCC" || ranked[2].Rank != 4 || ranked[2].Side != domain.SideShort {
		t.Errorf("short = %+v, want CCC rank 4 short", ranked[2])
	}
}

func TestRankUniverseNoDualMembership(t *testing.T) {
	svc := NewService(zerolog.Nop())
	cfg := testConfig()
	cfg.Universe = []string{"AAA", "BBB"}
	cfg.LongCount = 2
	cfg.ShortCount = 2 // only 0 symbols remain after longs

	bars := map[string][]domain.Bar{
		"AAA": trend(100, 1, 10),
		"BBB": trend(100, 2, 10),
	}

	ranked, err := svc.RankUniverse(cfg, bars)
	if err != nil {
		t.Fatalf("RankUniverse error: %v", err)
	}

	seen := map[string]domain.Side{}
	for _, r := range ranked {
		if prev, ok := seen[r.Symbol]; ok {
			t.Errorf("%s appears on both %s and %s", r.Symbol, prev, r.Side)
		}
		seen[r.Symbol] = r.Side
	}
	for _, r := range ranked {
		if r.Side == domain.SideShort {
			t.Errorf("no symbols should remain for the short book, got %+v", r)
		}
	}
}

func TestRankUniverseDeterministicTieBreak(t *testing.T) {
	svc := NewService(zerolog.Nop())
	cfg := testConfig()
	cfg.Universe = []string{"ZZZ", "AAA", "MMM"}
	cfg.LongCount = 2
	cfg.ShortCount = 0

	// Identical histories, identical scores
	bars := map[string][]domain.Bar{
		"ZZZ": trend(100, 1, 10),
		"AAA": trend(100, 1, 10),
		"MMM": trend(100, 1, 10),
	}

	for i := 0; i < 5; i++ {
		ranked, err := svc.RankUniverse(cfg, bars)
		if err != nil {
			t.Fatalf("RankUniverse error: %v", err)
		}
		if len(ranked) != 2 {
			t.Fatalf("expected 2 ranked, got %d", len(ranked))
		}
		if ranked[0].Symbol != "AAA" || ranked[1].Symbol != "MMM" {
			t.Errorf("tie break not alphabetical: %s, %s", ranked[0].Symbol, ranked[1].Symbol)
		}
	}
}

func TestRankUniverseSkipsThinHistory(t *testing.T) {
	svc := NewService(zerolog.Nop())
	cfg := testConfig()
	cfg.ShortCount = 0

	bars := map[string][]domain.Bar{
		"AAA": trend(100, 1, 10),
		"BBB": trend(100, 5, 4), // below the 5 bar floor, skipped
		"CCC": trend(100, 2, 10),
		"DDD": nil, // no data at all
	}

	ranked, err := svc.RankUniverse(cfg, bars)
	if err != nil {
		t.Fatalf("RankUniverse error: %v", err)
	}

	if len(ranked) != 2 {
		t.Fatalf("expected 2 ranked, got %d", len(ranked))
	}
	for _, r := range ranked {
		if r.Symbol == "BBB" || r.Symbol == "DDD" {
			t.Errorf("skipped symbol %s should not be ranked", r.Symbol)
		}
	}
}

func TestRankUniverseShrinksSides(t *testing.T) {
	svc := NewService(zerolog.Nop())
	cfg := testConfig()
	cfg.LongCount = 3
	cfg.ShortCount = 1

	// Only 2 symbols have enough history
	bars := map[string][]domain.Bar{
		"AAA": trend(100, 1, 10),
		"BBB": trend(100, 2, 10),
		"CCC": trend(100, 1, 2),
		"DDD": trend(100, 1, 3),
	}

	ranked, err := svc.RankUniverse(cfg, bars)
	if err != nil {
		t.Fatalf("RankUniverse error: %v", err)
	}

	longs, shorts := 0, 0
	for _, r := range ranked {
		switch r.Side {
		case domain.SideLong:
			longs++
		case domain.SideShort:
			shorts++
		}
	}
	if longs != 2 || shorts != 0 {
		t.Errorf("expected sides to shrink to 2 long / 0 short, got %d/%d", longs, shorts)
	}
}

func TestRankUniverseEmpty(t *testing.T) {
	svc := NewService(zerolog.Nop())
	cfg := testConfig()

	ranked, err := svc.RankUniverse(cfg, map[string][]domain.Bar{})
	if err != nil {
		t.Fatalf("RankUniverse error: %v", err)
	}
	if len(ranked) != 0 {
		t.Errorf("expected empty result with no bars, got %d", len(ranked))
	}
}

func TestRankUniverseRSIMetric(t *testing.T) {
	svc := NewService(zerolog.Nop())
	cfg := testConfig()
	cfg.Metric = domain.MetricRSI
	cfg.LookbackBars = 20
	cfg.Universe = []string{"UP", "DOWN"}
	cfg.LongCount = 1
	cfg.ShortCount = 1

	bars := map[string][]domain.Bar{
		"UP":   trend(100, 1, 20),
		"DOWN": trend(100, -1, 20),
	}

	ranked, err := svc.RankUniverse(cfg, bars)
	if err != nil {
		t.Fatalf("RankUniverse error: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("expected 2 ranked, got %d", len(ranked))
	}
	if ranked[0].Symbol != "UP" || ranked[0].Side != domain.SideLong {
		t.Errorf("expected UP long on top, got %+v", ranked[0])
	}
	if ranked[1].Symbol != "DOWN" || ranked[1].Side != domain.SideShort {
		t.Errorf("expected DOWN short at bottom, got %+v", ranked[1])
	}
}

func TestRankUniverseSlopeMetrics(t *testing.T) {
	for _, metric := range []domain.Metric{domain.MetricSMASlope, domain.MetricEMASlope} {
		t.Run(string(metric), func(t *testing.T) {
			svc := NewService(zerolog.Nop())
			cfg := testConfig()
			cfg.Metric = metric
			cfg.LookbackBars = 20
			cfg.Universe = []string{"RISE", "FALL"}
			cfg.LongCount = 1
			cfg.ShortCount = 1

			bars := map[string][]domain.Bar{
				"RISE": trend(100, 2, 20),
				"FALL": trend(100, -2, 20),
			}

			ranked, err := svc.RankUniverse(cfg, bars)
			if err != nil {
				t.Fatalf("RankUniverse error: %v", err)
			}
			if len(ranked) != 2 {
				t.Fatalf("expected 2 ranked, got %d", len(ranked))
			}
			if ranked[0].Symbol != "RISE" || ranked[0].Score <= 0 {
				t.Errorf("rising symbol should rank first with positive slope, got %+v", ranked[0])
			}
			if ranked[1].Symbol != "FALL" || ranked[1].Score >= 0 {
				t.Errorf("falling symbol should rank last with negative slope, got %+v", ranked[1])
			}
		})
	}
}

func TestRankUniverseUnknownMetric(t *testing.T) {
	svc := NewService(zerolog.Nop())
	cfg := testConfig()
	cfg.Metric = "sharpe"

	bars := map[string][]domain.Bar{"AAA": trend(100, 1, 10)}

	if _, err := svc.RankUniverse(cfg, bars); err == nil {
		t.Error("expected error for unknown metric")
	}
}

func TestRankUniverseUsesOnlyLookbackWindow(t *testing.T) {
	svc := NewService(zerolog.Nop())
	cfg := testConfig()
	cfg.Universe = []string{"AAA"}
	cfg.LongCount = 1
	cfg.ShortCount = 0
	cfg.LookbackBars = 5

	// Crashes early, then climbs: only the climb is inside the window
	closes := []float64{500, 400, 300, 200, 100, 100, 105, 110, 115, 120}
	bars := map[string][]domain.Bar{"AAA": barsFromCloses(closes...)}

	ranked, err := svc.RankUniverse(cfg, bars)
	if err != nil {
		t.Fatalf("RankUniverse error: %v", err)
	}
	if len(ranked) != 1 {
		t.Fatalf("expected 1 ranked, got %d", len(ranked))
	}
	if ranked[0].Score <= 0 {
		t.Errorf("score should reflect only the last 5 bars (positive return), got %g", ranked[0].Score)
	}
}
