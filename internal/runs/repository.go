// Package runs persists strategy run results to the runs ledger.
package runs

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/niq79/trading-bot-sub001/internal/domain"
	"github.com/rs/zerolog"
)

// Repository handles run history operations (runs.db)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new run repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "runs").Logger(),
	}
}

// Save upserts the full run row. The orchestrator calls this on every
// state transition, so the stored row always reflects the latest state.
func (r *Repository) Save(result *domain.RunResult) error {
	ranked, err := json.Marshal(result.Ranked)
	if err != nil {
		return fmt.Errorf("failed to marshal ranked: %w", err)
	}
	targets, err := json.Marshal(result.Targets)
	if err != nil {
		return fmt.Errorf("failed to marshal targets: %w", err)
	}
	orders, err := json.Marshal(result.Orders)
	if err != nil {
		return fmt.Errorf("failed to marshal orders: %w", err)
	}
	submitted, err := json.Marshal(result.SubmittedOrderIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal submitted order IDs: %w", err)
	}
	orderErrors, err := json.Marshal(result.OrderErrors)
	if err != nil {
		return fmt.Errorf("failed to marshal order errors: %w", err)
	}

	finishedAt := ""
	if !result.FinishedAt.IsZero() {
		finishedAt = result.FinishedAt.Format(time.RFC3339Nano)
	}

	_, err = r.db.Exec(`
		INSERT OR REPLACE INTO runs (
			run_id, tenant_id, strategy_id, state, error, gate_reason,
			equity, dry_run, partial,
			ranked, targets, orders, submitted_order_ids, order_errors,
			started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, result.RunID, result.TenantID, result.StrategyID, string(result.State),
		result.Err, result.GateReason, result.Equity,
		boolToInt(result.DryRun), boolToInt(result.Partial),
		string(ranked), string(targets), string(orders), string(submitted), string(orderErrors),
		result.StartedAt.Format(time.RFC3339Nano), finishedAt)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", result.RunID, err)
	}
	return nil
}

// RecordSubmittedOrder appends one submitted order to the audit trail
func (r *Repository) RecordSubmittedOrder(runID, tenantID string, order domain.Order, brokerOrderID string) error {
	_, err := r.db.Exec(`
		INSERT INTO submitted_orders (run_id, tenant_id, symbol, side, notional, reason, broker_order_id, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, tenantID, order.Symbol, string(order.Side), order.Notional, order.Reason,
		brokerOrderID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to record submitted order for run %s: %w", runID, err)
	}
	return nil
}

// GetByID returns one run, or nil if it doesn't exist
func (r *Repository) GetByID(runID string) (*domain.RunResult, error) {
	row := r.db.QueryRow(selectColumns+" FROM runs WHERE run_id = ?", runID)

	result, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	return result, nil
}

// List returns runs newest first. Empty tenantID/strategyID match everything.
func (r *Repository) List(tenantID, strategyID string, limit int) ([]domain.RunResult, error) {
	if limit <= 0 {
		limit = 50
	}

	query := selectColumns + " FROM runs WHERE 1=1"
	args := []interface{}{}
	if tenantID != "" {
		query += " AND tenant_id = ?"
		args = append(args, tenantID)
	}
	if strategyID != "" {
		query += " AND strategy_id = ?"
		args = append(args, strategyID)
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var result []domain.RunResult
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		result = append(result, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run rows: %w", err)
	}
	return result, nil
}

// LatestForStrategy returns the most recent run of a strategy, or nil
func (r *Repository) LatestForStrategy(strategyID string) (*domain.RunResult, error) {
	row := r.db.QueryRow(selectColumns+` FROM runs
		WHERE strategy_id = ? ORDER BY started_at DESC LIMIT 1`, strategyID)

	result, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run for strategy %s: %w", strategyID, err)
	}
	return result, nil
}

// PruneOlderThan deletes runs started before the cutoff.
// Returns the number of runs removed.
func (r *Repository) PruneOlderThan(cutoff time.Time) (int64, error) {
	cutoffStr := cutoff.UTC().Format(time.RFC3339Nano)

	if _, err := r.db.Exec(`DELETE FROM submitted_orders WHERE run_id IN
		(SELECT run_id FROM runs WHERE started_at < ?)`, cutoffStr); err != nil {
		return 0, fmt.Errorf("failed to prune submitted orders: %w", err)
	}

	result, err := r.db.Exec("DELETE FROM runs WHERE started_at < ?", cutoffStr)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check prune result: %w", err)
	}

	if deleted > 0 {
		r.log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("Pruned old runs")
	}
	return deleted, nil
}

const selectColumns = `SELECT run_id, tenant_id, strategy_id, state, error, gate_reason,
	equity, dry_run, partial, ranked, targets, orders, submitted_order_ids, order_errors,
	started_at, finished_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*domain.RunResult, error) {
	var result domain.RunResult
	var state, ranked, targets, orders, submitted, orderErrors, startedAt, finishedAt string
	var dryRun, partial int

	err := row.Scan(&result.RunID, &result.TenantID, &result.StrategyID, &state,
		&result.Err, &result.GateReason, &result.Equity, &dryRun, &partial,
		&ranked, &targets, &orders, &submitted, &orderErrors, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	result.State = domain.RunState(state)
	result.DryRun = dryRun != 0
	result.Partial = partial != 0
	if err := json.Unmarshal([]byte(ranked), &result.Ranked); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ranked for run %s: %w", result.RunID, err)
	}
	if err := json.Unmarshal([]byte(targets), &result.Targets); err != nil {
		return nil, fmt.Errorf("failed to unmarshal targets for run %s: %w", result.RunID, err)
	}
	if err := json.Unmarshal([]byte(orders), &result.Orders); err != nil {
		return nil, fmt.Errorf("failed to unmarshal orders for run %s: %w", result.RunID, err)
	}
	if err := json.Unmarshal([]byte(submitted), &result.SubmittedOrderIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal submitted order IDs for run %s: %w", result.RunID, err)
	}
	if err := json.Unmarshal([]byte(orderErrors), &result.OrderErrors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order errors for run %s: %w", result.RunID, err)
	}
	result.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if finishedAt != "" {
		result.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedAt)
	}
	return &result, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
