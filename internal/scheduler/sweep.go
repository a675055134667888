package scheduler

import (
	"context"

	"github.com/niq79/trading-bot-sub001/internal/domain"
	"github.com/niq79/trading-bot-sub001/internal/orchestrator"
	"github.com/rs/zerolog"
)

// SweepJob runs every enabled strategy of every enabled tenant.
// Scheduled shortly after market open; tenants whose market is closed
// (holidays) are skipped by the orchestrator's clock check.
type SweepJob struct {
	orch *orchestrator.Orchestrator
	log  zerolog.Logger
}

// NewSweepJob creates the scheduled rebalance sweep
func NewSweepJob(orch *orchestrator.Orchestrator, log zerolog.Logger) *SweepJob {
	return &SweepJob{
		orch: orch,
		log:  log.With().Str("job", "rebalance_sweep").Logger(),
	}
}

// Name returns the job name
func (j *SweepJob) Name() string {
	return "rebalance_sweep"
}

// Run executes the sweep
func (j *SweepJob) Run() error {
	report, err := j.orch.RunAll(context.Background(), false, false)
	if err != nil {
		return err
	}

	recorded, failed := 0, 0
	for _, r := range report.Runs {
		if r.State == domain.RunFailed {
			failed++
		} else {
			recorded++
		}
	}

	j.log.Info().
		Int("tenants", report.TenantsProcessed).
		Int("runs", len(report.Runs)).
		Int("recorded", recorded).
		Int("failed", failed).
		Int("orders", report.TotalOrders).
		Msg("Sweep completed")
	return nil
}
