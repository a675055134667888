package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/niq79/trading-bot-sub001/internal/domain"
	"github.com/niq79/trading-bot-sub001/internal/events"
	"github.com/niq79/trading-bot-sub001/internal/runs"
	"github.com/rs/zerolog"
)

// recorder persists run state transitions and publishes them on the
// event bus. Persistence failures are logged, never fatal: losing an
// audit row must not kill a live trading run.
type recorder struct {
	repo *runs.Repository
	bus  *events.Bus
	log  zerolog.Logger
}

func newRecorder(repo *runs.Repository, bus *events.Bus, log zerolog.Logger) *recorder {
	return &recorder{
		repo: repo,
		bus:  bus,
		log:  log.With().Str("component", "run_recorder").Logger(),
	}
}

// transition moves a run to a new state, saves it, and publishes the change
func (r *recorder) transition(result *domain.RunResult, state domain.RunState) {
	result.State = state
	if isTerminal(state) && result.FinishedAt.IsZero() {
		result.FinishedAt = time.Now().UTC()
	}

	if err := r.repo.Save(result); err != nil {
		r.log.Error().
			Err(err).
			Str("run_id", result.RunID).
			Str("state", string(state)).
			Msg("Failed to persist run state")
	}

	r.bus.Emit(events.RunStateChanged, "orchestrator", &events.RunStateChangedData{
		RunID:      result.RunID,
		TenantID:   result.TenantID,
		StrategyID: result.StrategyID,
		State:      string(state),
		Partial:    result.Partial,
		Error:      result.Err,
	})
}

// complete marks a run Recorded
func (r *recorder) complete(result *domain.RunResult) {
	r.transition(result, domain.RunRecorded)
}

// fail marks a run Failed with the given error. A run killed by its
// deadline additionally carries Partial, since whatever it recorded
// so far is incomplete.
func (r *recorder) fail(result *domain.RunResult, err error) *domain.RunResult {
	result.Err = err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		result.Partial = true
	}

	r.log.Error().
		Err(err).
		Str("run_id", result.RunID).
		Str("strategy_id", result.StrategyID).
		Msg("Run failed")

	r.transition(result, domain.RunFailed)
	return result
}

// recordSubmitted appends one order to the submitted-orders audit trail
func (r *recorder) recordSubmitted(result *domain.RunResult, order domain.Order, brokerOrderID string) error {
	return r.repo.RecordSubmittedOrder(result.RunID, result.TenantID, order, brokerOrderID)
}

func isTerminal(state domain.RunState) bool {
	return state == domain.RunRecorded || state == domain.RunFailed
}
