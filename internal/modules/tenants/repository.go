// Package tenants manages the isolated accounts the orchestrator sweeps.
// Each tenant carries its own broker credentials and strategy set.
package tenants

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/niq79/trading-bot-sub001/internal/domain"
	"github.com/rs/zerolog"
)

// Repository handles tenant database operations (config.db, tenants table)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new tenant repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "tenants").Logger(),
	}
}

// Create inserts a new tenant. A missing ID is generated.
func (r *Repository) Create(t *domain.Tenant) error {
	if t.Name == "" {
		return fmt.Errorf("tenant name is required")
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := r.db.Exec(`
		INSERT INTO tenants (id, name, broker_key_id, broker_secret, paper, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Name, t.BrokerKeyID, t.BrokerSecret, boolToInt(t.Paper), boolToInt(t.Enabled),
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to create tenant %s: %w", t.Name, err)
	}

	r.log.Info().Str("tenant_id", t.ID).Str("name", t.Name).Msg("Tenant created")
	return nil
}

// GetByID returns one tenant, or nil if it doesn't exist
func (r *Repository) GetByID(id string) (*domain.Tenant, error) {
	row := r.db.QueryRow(`
		SELECT id, name, broker_key_id, broker_secret, paper, enabled, created_at, updated_at
		FROM tenants WHERE id = ?
	`, id)

	t, err := scanTenant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant %s: %w", id, err)
	}
	return t, nil
}

// List returns all tenants ordered by name
func (r *Repository) List() ([]domain.Tenant, error) {
	rows, err := r.db.Query(`
		SELECT id, name, broker_key_id, broker_secret, paper, enabled, created_at, updated_at
		FROM tenants ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	return collectTenants(rows)
}

// ListEnabled returns all enabled tenants ordered by ID for deterministic sweeps
func (r *Repository) ListEnabled() ([]domain.Tenant, error) {
	rows, err := r.db.Query(`
		SELECT id, name, broker_key_id, broker_secret, paper, enabled, created_at, updated_at
		FROM tenants WHERE enabled = 1 ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled tenants: %w", err)
	}
	defer rows.Close()

	return collectTenants(rows)
}

// Update rewrites a tenant's mutable fields
func (r *Repository) Update(t *domain.Tenant) error {
	t.UpdatedAt = time.Now().UTC()

	result, err := r.db.Exec(`
		UPDATE tenants
		SET name = ?, broker_key_id = ?, broker_secret = ?, paper = ?, enabled = ?, updated_at = ?
		WHERE id = ?
	`, t.Name, t.BrokerKeyID, t.BrokerSecret, boolToInt(t.Paper), boolToInt(t.Enabled),
		t.UpdatedAt.Format(time.RFC3339), t.ID)
	if err != nil {
		return fmt.Errorf("failed to update tenant %s: %w", t.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result for tenant %s: %w", t.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("tenant %s not found", t.ID)
	}
	return nil
}

// Delete removes a tenant and, via foreign key cascade, its strategies
func (r *Repository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM tenants WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete tenant %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result for tenant %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("tenant %s not found", id)
	}

	r.log.Info().Str("tenant_id", id).Msg("Tenant deleted")
	return nil
}

// rowScanner lets scanTenant work on both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTenant(row rowScanner) (*domain.Tenant, error) {
	var t domain.Tenant
	var paper, enabled int
	var createdAt, updatedAt string

	if err := row.Scan(&t.ID, &t.Name, &t.BrokerKeyID, &t.BrokerSecret, &paper, &enabled, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	t.Paper = paper != 0
	t.Enabled = enabled != 0
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &t, nil
}

func collectTenants(rows *sql.Rows) ([]domain.Tenant, error) {
	var result []domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant row: %w", err)
		}
		result = append(result, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tenant rows: %w", err)
	}
	return result, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
