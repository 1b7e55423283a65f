package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/anthropics/feishu-digest-bot/internal/biz/domain"
	"github.com/anthropics/feishu-digest-bot/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// tenantRepo implements the tenant registry on sqlite. Message history is
// deliberately volatile, but tenant bindings survive restarts so a deploy
// does not silence every tenant until the next join event.
type tenantRepo struct {
	db *sql.DB
}

// NewTenantRepo opens (creating if needed) the tenant registry database.
func NewTenantRepo(dbPath string) (repo.TenantRepo, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS tenants (
			tenant_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			digest_channel_id TEXT DEFAULT '',
			enabled INTEGER DEFAULT 1,
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tenants table: %w", err)
	}

	fmt.Println("[Registry] Database initialized")
	return &tenantRepo{db: db}, nil
}

// Save inserts or replaces a tenant configuration.
func (r *tenantRepo) Save(ctx context.Context, t *domain.TenantConfig) error {
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	enabled := 0
	if t.Enabled {
		enabled = 1
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO tenants (tenant_id, name, digest_channel_id, enabled, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, t.TenantID, t.Name, t.DigestChannelID, enabled, createdAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save tenant: %w", err)
	}
	return nil
}

// Get returns one tenant, or nil if unknown.
func (r *tenantRepo) Get(ctx context.Context, tenantID string) (*domain.TenantConfig, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT tenant_id, name, digest_channel_id, enabled, created_at
		FROM tenants WHERE tenant_id = ?
	`, tenantID)

	t, err := scanTenant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return t, nil
}

// Delete removes one tenant.
func (r *tenantRepo) Delete(ctx context.Context, tenantID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tenants WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	return nil
}

// List returns all tenants in registration order.
func (r *tenantRepo) List(ctx context.Context) ([]*domain.TenantConfig, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tenant_id, name, digest_channel_id, enabled, created_at
		FROM tenants ORDER BY created_at ASC, tenant_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*domain.TenantConfig
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// SetDigestChannel binds the digest destination chat for a tenant.
func (r *tenantRepo) SetDigestChannel(ctx context.Context, tenantID, channelID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tenants SET digest_channel_id = ? WHERE tenant_id = ?
	`, channelID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to set digest channel: %w", err)
	}
	return nil
}

// SetEnabled toggles scheduled digests for a tenant.
func (r *tenantRepo) SetEnabled(ctx context.Context, tenantID string, enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	_, err := r.db.ExecContext(ctx, `UPDATE tenants SET enabled = ? WHERE tenant_id = ?`, v, tenantID)
	if err != nil {
		return fmt.Errorf("failed to set enabled: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *tenantRepo) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (*domain.TenantConfig, error) {
	var t domain.TenantConfig
	var enabled int
	var createdAt int64
	if err := row.Scan(&t.TenantID, &t.Name, &t.DigestChannelID, &enabled, &createdAt); err != nil {
		return nil, err
	}
	t.Enabled = enabled != 0
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &t, nil
}
