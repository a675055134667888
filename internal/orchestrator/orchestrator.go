// Package orchestrator drives strategy runs across tenants.
//
// Tenants run concurrently up to a bounded worker pool; strategies
// within a tenant run sequentially in strategy-ID order so that each
// run sees the account state its predecessor left behind.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/niq79/trading-bot-sub001/internal/domain"
	"github.com/niq79/trading-bot-sub001/internal/events"
	"github.com/niq79/trading-bot-sub001/internal/modules/ranking"
	"github.com/niq79/trading-bot-sub001/internal/modules/rebalancing"
	"github.com/niq79/trading-bot-sub001/internal/modules/signals"
	"github.com/niq79/trading-bot-sub001/internal/modules/strategy"
	"github.com/niq79/trading-bot-sub001/internal/modules/targets"
	"github.com/niq79/trading-bot-sub001/internal/modules/tenants"
	"github.com/niq79/trading-bot-sub001/internal/runs"
	"github.com/rs/zerolog"
)

const (
	defaultWorkers    = 4
	defaultRunTimeout = 2 * time.Minute
)

var (
	// ErrNotFound marks run requests naming an unknown tenant or strategy
	ErrNotFound = errors.New("not found")
	// ErrRunInFlight marks rejected reentrant run requests
	ErrRunInFlight = errors.New("already has a run in flight")
)

// Config bounds the orchestrator's concurrency and run duration
type Config struct {
	Workers    int
	RunTimeout time.Duration
}

// RunRequest selects what to run. Empty TenantID means all tenants;
// empty StrategyID means all strategies of the tenant. Force bypasses
// the market-clock check. DryRun suppresses submission for every run
// in scope, regardless of each strategy's own dry-run flag.
type RunRequest struct {
	TenantID   string `json:"tenant_id,omitempty"`
	StrategyID string `json:"strategy_id,omitempty"`
	Force      bool   `json:"force,omitempty"`
	DryRun     bool   `json:"dry_run,omitempty"`
}

// Orchestrator owns the run pipeline and its worker pool
type Orchestrator struct {
	cfg Config

	tenantRepo   *tenants.Repository
	strategyRepo *strategy.Repository

	brokerFactory  domain.BrokerFactory
	marketData     domain.MarketDataProvider
	signalProvider domain.SignalProvider

	ranking     *ranking.Service
	signals     *signals.Service
	targets     *targets.Service
	rebalancing *rebalancing.Service

	recorder *recorder
	bus      *events.Bus
	log      zerolog.Logger

	sem      chan struct{}
	running  sync.WaitGroup
	inFlight map[string]bool
	mu       sync.Mutex
}

// New creates an orchestrator. Zero config values fall back to defaults.
func New(
	cfg Config,
	tenantRepo *tenants.Repository,
	strategyRepo *strategy.Repository,
	runRepo *runs.Repository,
	brokerFactory domain.BrokerFactory,
	marketData domain.MarketDataProvider,
	signalProvider domain.SignalProvider,
	rankingService *ranking.Service,
	signalService *signals.Service,
	targetService *targets.Service,
	rebalanceService *rebalancing.Service,
	bus *events.Bus,
	log zerolog.Logger,
) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}

	scopedLog := log.With().Str("service", "orchestrator").Logger()

	return &Orchestrator{
		cfg:            cfg,
		tenantRepo:     tenantRepo,
		strategyRepo:   strategyRepo,
		brokerFactory:  brokerFactory,
		marketData:     marketData,
		signalProvider: signalProvider,
		ranking:        rankingService,
		signals:        signalService,
		targets:        targetService,
		rebalancing:    rebalanceService,
		recorder:       newRecorder(runRepo, bus, scopedLog),
		bus:            bus,
		log:            scopedLog,
		sem:            make(chan struct{}, cfg.Workers),
		inFlight:       make(map[string]bool),
	}
}

// Run dispatches a run request to the matching scope and aggregates
// the outcome into a sweep report.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*domain.SweepReport, error) {
	if req.StrategyID != "" {
		result, err := o.RunStrategy(ctx, req.TenantID, req.StrategyID, req.DryRun)
		if err != nil {
			return nil, err
		}
		return newSweepReport([]domain.RunResult{*result}, 1, false), nil
	}
	if req.TenantID != "" {
		results, err := o.RunTenant(ctx, req.TenantID, req.Force, req.DryRun)
		if err != nil {
			return nil, err
		}
		return newSweepReport(results, 1, ctx.Err() != nil), nil
	}
	return o.RunAll(ctx, req.Force, req.DryRun)
}

// RunAll sweeps every enabled tenant. Tenant failures are contained:
// the sweep always completes across tenants, and a sweep cut short by
// its context still reports what it recorded, flagged partial.
func (o *Orchestrator) RunAll(ctx context.Context, force, dryRun bool) (*domain.SweepReport, error) {
	tenantList, err := o.tenantRepo.ListEnabled()
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled tenants: %w", err)
	}
	if len(tenantList) == 0 {
		o.log.Info().Msg("No enabled tenants, nothing to run")
		return newSweepReport(nil, 0, false), nil
	}

	started := time.Now()
	o.log.Info().Int("tenants", len(tenantList)).Bool("force", force).Bool("dry_run", dryRun).Msg("Sweep started")

	var mu sync.Mutex
	var all []domain.RunResult
	var wg sync.WaitGroup

	for _, tenant := range tenantList {
		wg.Add(1)
		go func(tenant domain.Tenant) {
			defer wg.Done()

			o.sem <- struct{}{}
			defer func() { <-o.sem }()

			if ctx.Err() != nil {
				return
			}
			results := o.runTenant(ctx, tenant, force, dryRun)

			mu.Lock()
			all = append(all, results...)
			mu.Unlock()
		}(tenant)
	}
	wg.Wait()

	failed := 0
	for _, r := range all {
		if r.State == domain.RunFailed {
			failed++
		}
	}

	o.bus.Emit(events.SweepCompleted, "orchestrator", &events.SweepCompletedData{
		Tenants:   len(tenantList),
		Runs:      len(all),
		Failed:    failed,
		DurationS: int(time.Since(started).Seconds()),
	})
	o.log.Info().
		Int("runs", len(all)).
		Int("failed", failed).
		Dur("duration", time.Since(started)).
		Msg("Sweep finished")

	return newSweepReport(all, len(tenantList), ctx.Err() != nil), nil
}

// RunTenant runs all enabled strategies of one tenant sequentially
func (o *Orchestrator) RunTenant(ctx context.Context, tenantID string, force, dryRun bool) ([]domain.RunResult, error) {
	tenant, err := o.tenantRepo.GetByID(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant %s: %w", tenantID, err)
	}
	if tenant == nil {
		return nil, fmt.Errorf("tenant %s %w", tenantID, ErrNotFound)
	}
	return o.runTenant(ctx, *tenant, force, dryRun), nil
}

// RunStrategy runs one strategy immediately, bypassing the market
// clock. An empty tenantID is resolved from the strategy itself.
func (o *Orchestrator) RunStrategy(ctx context.Context, tenantID, strategyID string, dryRun bool) (*domain.RunResult, error) {
	cfg, err := o.strategyRepo.GetByID(strategyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get strategy %s: %w", strategyID, err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("strategy %s %w", strategyID, ErrNotFound)
	}
	if tenantID != "" && cfg.TenantID != tenantID {
		return nil, fmt.Errorf("strategy %s does not belong to tenant %s", strategyID, tenantID)
	}

	tenant, err := o.tenantRepo.GetByID(cfg.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant %s: %w", cfg.TenantID, err)
	}
	if tenant == nil {
		return nil, fmt.Errorf("tenant %s %w", cfg.TenantID, ErrNotFound)
	}

	result := o.runGuarded(ctx, *tenant, *cfg, dryRun)
	if result == nil {
		return nil, fmt.Errorf("strategy %s %w", strategyID, ErrRunInFlight)
	}
	return result, nil
}

// Drain blocks until every in-flight run has finished. Callers must
// stop producing new runs first.
func (o *Orchestrator) Drain() {
	o.running.Wait()
}

// runTenant executes a tenant's enabled strategies in ID order.
// Errors here fail this tenant only, never the sweep.
func (o *Orchestrator) runTenant(ctx context.Context, tenant domain.Tenant, force, dryRun bool) []domain.RunResult {
	log := o.log.With().Str("tenant_id", tenant.ID).Logger()

	strategies, err := o.strategyRepo.ListEnabledByTenant(tenant.ID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list strategies, skipping tenant")
		return nil
	}
	if len(strategies) == 0 {
		log.Debug().Msg("No enabled strategies")
		return nil
	}

	if !force {
		clock, err := o.brokerFactory(tenant).GetClock(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to check market clock, skipping tenant")
			return nil
		}
		if !clock.IsOpen {
			log.Info().Time("next_open", clock.NextOpen).Msg("Market closed, skipping tenant")
			return nil
		}
	}

	results := make([]domain.RunResult, 0, len(strategies))
	for _, cfg := range strategies {
		if ctx.Err() != nil {
			log.Warn().Err(ctx.Err()).Msg("Context done, aborting remaining strategy runs")
			break
		}
		if result := o.runGuarded(ctx, tenant, cfg, dryRun); result != nil {
			results = append(results, *result)
		}
	}
	return results
}

// runGuarded wraps execute with the per-strategy reentrancy guard.
// Returns nil when a run for the same strategy is already in flight.
func (o *Orchestrator) runGuarded(ctx context.Context, tenant domain.Tenant, cfg domain.StrategyConfig, dryRun bool) *domain.RunResult {
	if !o.tryAcquire(cfg.ID) {
		o.log.Warn().
			Str("strategy_id", cfg.ID).
			Str("tenant_id", tenant.ID).
			Msg("Run already in flight, skipping")
		return nil
	}

	o.running.Add(1)
	defer o.running.Done()
	defer o.release(cfg.ID)

	return o.execute(ctx, tenant, cfg, dryRun)
}

// newSweepReport folds per-run results into the per-tenant summary the
// run surface reports. Dry runs count their planned orders; live runs
// count only what actually reached the broker.
func newSweepReport(results []domain.RunResult, tenantsProcessed int, partial bool) *domain.SweepReport {
	byTenant := make(map[string]*domain.TenantSummary)

	report := &domain.SweepReport{
		Results:          []domain.TenantSummary{},
		Runs:             results,
		TenantsProcessed: tenantsProcessed,
		Partial:          partial,
	}

	for _, r := range results {
		summary, ok := byTenant[r.TenantID]
		if !ok {
			summary = &domain.TenantSummary{TenantID: r.TenantID, Errors: []string{}}
			byTenant[r.TenantID] = summary
		}

		summary.StrategiesRun++
		placed := len(r.SubmittedOrderIDs)
		if r.DryRun {
			placed = len(r.Orders)
		}
		summary.OrdersPlaced += placed
		report.TotalOrders += placed

		if r.Err != "" {
			summary.Errors = append(summary.Errors, r.Err)
		}
		summary.Errors = append(summary.Errors, r.OrderErrors...)
	}

	for _, summary := range byTenant {
		report.Results = append(report.Results, *summary)
	}
	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].TenantID < report.Results[j].TenantID
	})
	return report
}

func (o *Orchestrator) tryAcquire(strategyID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.inFlight[strategyID] {
		return false
	}
	o.inFlight[strategyID] = true
	return true
}

func (o *Orchestrator) release(strategyID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, strategyID)
}
