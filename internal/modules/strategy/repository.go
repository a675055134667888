// Package strategy stores per-tenant strategy configurations.
package strategy

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/niq79/trading-bot-sub001/internal/domain"
	"github.com/rs/zerolog"
)

// Repository handles strategy database operations (config.db, strategies table).
// Universe and signal rules are stored as JSON columns.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new strategy repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "strategy").Logger(),
	}
}

// Create validates and inserts a new strategy. A missing ID is generated.
func (r *Repository) Create(cfg *domain.StrategyConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid strategy: %w", err)
	}
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	universe, rules, err := marshalJSONColumns(cfg)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		INSERT INTO strategies (
			id, tenant_id, name, metric, universe, signal_rules,
			lookback_bars, long_count, short_count,
			max_weight_per_symbol, cash_reserve_pct, rebalance_fraction, dust_floor,
			dry_run, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, cfg.ID, cfg.TenantID, cfg.Name, string(cfg.Metric), universe, rules,
		cfg.LookbackBars, cfg.LongCount, cfg.ShortCount,
		cfg.MaxWeightPerSymbol, cfg.CashReservePct, cfg.RebalanceFraction, cfg.DustFloor,
		boolToInt(cfg.DryRun), boolToInt(cfg.Enabled),
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to create strategy %s: %w", cfg.Name, err)
	}

	r.log.Info().
		Str("strategy_id", cfg.ID).
		Str("tenant_id", cfg.TenantID).
		Str("name", cfg.Name).
		Msg("Strategy created")
	return nil
}

// GetByID returns one strategy, or nil if it doesn't exist
func (r *Repository) GetByID(id string) (*domain.StrategyConfig, error) {
	row := r.db.QueryRow(selectColumns+" FROM strategies WHERE id = ?", id)

	cfg, err := scanStrategy(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get strategy %s: %w", id, err)
	}
	return cfg, nil
}

// ListByTenant returns all of a tenant's strategies ordered by ID
func (r *Repository) ListByTenant(tenantID string) ([]domain.StrategyConfig, error) {
	rows, err := r.db.Query(selectColumns+" FROM strategies WHERE tenant_id = ? ORDER BY id", tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list strategies for tenant %s: %w", tenantID, err)
	}
	defer rows.Close()

	return collectStrategies(rows)
}

// ListEnabledByTenant returns the tenant's enabled strategies in ID order.
// The orchestrator runs them sequentially in exactly this order.
func (r *Repository) ListEnabledByTenant(tenantID string) ([]domain.StrategyConfig, error) {
	rows, err := r.db.Query(selectColumns+" FROM strategies WHERE tenant_id = ? AND enabled = 1 ORDER BY id", tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled strategies for tenant %s: %w", tenantID, err)
	}
	defer rows.Close()

	return collectStrategies(rows)
}

// Update validates and rewrites a strategy
func (r *Repository) Update(cfg *domain.StrategyConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid strategy: %w", err)
	}

	cfg.UpdatedAt = time.Now().UTC()

	universe, rules, err := marshalJSONColumns(cfg)
	if err != nil {
		return err
	}

	result, err := r.db.Exec(`
		UPDATE strategies
		SET name = ?, metric = ?, universe = ?, signal_rules = ?,
			lookback_bars = ?, long_count = ?, short_count = ?,
			max_weight_per_symbol = ?, cash_reserve_pct = ?, rebalance_fraction = ?, dust_floor = ?,
			dry_run = ?, enabled = ?, updated_at = ?
		WHERE id = ?
	`, cfg.Name, string(cfg.Metric), universe, rules,
		cfg.LookbackBars, cfg.LongCount, cfg.ShortCount,
		cfg.MaxWeightPerSymbol, cfg.CashReservePct, cfg.RebalanceFraction, cfg.DustFloor,
		boolToInt(cfg.DryRun), boolToInt(cfg.Enabled), cfg.UpdatedAt.Format(time.RFC3339), cfg.ID)
	if err != nil {
		return fmt.Errorf("failed to update strategy %s: %w", cfg.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result for strategy %s: %w", cfg.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("strategy %s not found", cfg.ID)
	}
	return nil
}

// Delete removes a strategy
func (r *Repository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM strategies WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete strategy %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result for strategy %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("strategy %s not found", id)
	}

	r.log.Info().Str("strategy_id", id).Msg("Strategy deleted")
	return nil
}

const selectColumns = `SELECT id, tenant_id, name, metric, universe, signal_rules,
	lookback_bars, long_count, short_count,
	max_weight_per_symbol, cash_reserve_pct, rebalance_fraction, dust_floor,
	dry_run, enabled, created_at, updated_at`

func marshalJSONColumns(cfg *domain.StrategyConfig) (string, string, error) {
	universe, err := json.Marshal(cfg.Universe)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal universe: %w", err)
	}
	rules, err := json.Marshal(cfg.SignalRules)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal signal rules: %w", err)
	}
	return string(universe), string(rules), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStrategy(row rowScanner) (*domain.StrategyConfig, error) {
	var cfg domain.StrategyConfig
	var metric, universe, rules, createdAt, updatedAt string
	var dryRun, enabled int

	err := row.Scan(&cfg.ID, &cfg.TenantID, &cfg.Name, &metric, &universe, &rules,
		&cfg.LookbackBars, &cfg.LongCount, &cfg.ShortCount,
		&cfg.MaxWeightPerSymbol, &cfg.CashReservePct, &cfg.RebalanceFraction, &cfg.DustFloor,
		&dryRun, &enabled, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	cfg.Metric = domain.Metric(metric)
	cfg.DryRun = dryRun != 0
	cfg.Enabled = enabled != 0
	if err := json.Unmarshal([]byte(universe), &cfg.Universe); err != nil {
		return nil, fmt.Errorf("failed to unmarshal universe for strategy %s: %w", cfg.ID, err)
	}
	if err := json.Unmarshal([]byte(rules), &cfg.SignalRules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal signal rules for strategy %s: %w", cfg.ID, err)
	}
	cfg.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	cfg.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &cfg, nil
}

func collectStrategies(rows *sql.Rows) ([]domain.StrategyConfig, error) {
	var result []domain.StrategyConfig
	for rows.Next() {
		cfg, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan strategy row: %w", err)
		}
		result = append(result, *cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate strategy rows: %w", err)
	}
	return result, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
