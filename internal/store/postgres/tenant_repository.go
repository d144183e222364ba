// Copyright 2026 The Shiplog Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shiplog/shiplog/internal/tenant"
)

// TenantRepository implements tenant.Repository
type TenantRepository struct {
	db *DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *DB) *TenantRepository {
	return &TenantRepository{db: db}
}

const tenantColumns = `id, slug, name, custom_domain, domain_verified, ssl_enabled, last_domain_check_at, created_at, updated_at`

// Create inserts a new tenant
func (r *TenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO tenants (id, slug, name, custom_domain, domain_verified, ssl_enabled, last_domain_check_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID, t.Slug, t.Name, t.CustomDomain, t.DomainVerified, t.SSLEnabled, t.LastDomainCheckAt, t.CreatedAt, t.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return tenant.ErrSlugAlreadyTaken
		}
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// GetByID retrieves a tenant by primary key
func (r *TenantRepository) GetByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	return r.scanOne(r.db.pool.QueryRow(ctx, `
		SELECT `+tenantColumns+` FROM tenants WHERE id = $1
	`, id))
}

// GetBySlug retrieves a tenant by its subdomain slug
func (r *TenantRepository) GetBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	return r.scanOne(r.db.pool.QueryRow(ctx, `
		SELECT `+tenantColumns+` FROM tenants WHERE slug = $1
	`, slug))
}

// GetByCustomDomain retrieves a tenant by its custom domain
func (r *TenantRepository) GetByCustomDomain(ctx context.Context, domain string) (*tenant.Tenant, error) {
	return r.scanOne(r.db.pool.QueryRow(ctx, `
		SELECT `+tenantColumns+` FROM tenants WHERE custom_domain = $1
	`, domain))
}

// List retrieves tenants with pagination
func (r *TenantRepository) List(ctx context.Context, limit, offset int) ([]*tenant.Tenant, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+tenantColumns+` FROM tenants ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()
	return r.scanAll(rows)
}

// UpdateDomainFields persists only the domain-related columns; everything
// else is owned by the CRUD layer.
func (r *TenantRepository) UpdateDomainFields(ctx context.Context, t *tenant.Tenant) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE tenants
		SET custom_domain = $2, domain_verified = $3, ssl_enabled = $4, last_domain_check_at = $5, updated_at = $6
		WHERE id = $1
	`, t.ID, t.CustomDomain, t.DomainVerified, t.SSLEnabled, t.LastDomainCheckAt, time.Now())

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return tenant.ErrDomainAlreadyUsed
		}
		return fmt.Errorf("failed to update tenant domain fields: %w", err)
	}
	if result.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}
	return nil
}

// ListPendingDomains returns tenants whose custom domain awaits
// verification, oldest-checked first so fresh attachments go before
// long-pending retries.
func (r *TenantRepository) ListPendingDomains(ctx context.Context, limit int) ([]*tenant.Tenant, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+tenantColumns+` FROM tenants
		WHERE custom_domain IS NOT NULL AND domain_verified = FALSE
		ORDER BY last_domain_check_at ASC NULLS FIRST
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending domains: %w", err)
	}
	defer rows.Close()
	return r.scanAll(rows)
}

func (r *TenantRepository) scanOne(row pgx.Row) (*tenant.Tenant, error) {
	var t tenant.Tenant
	err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.CustomDomain, &t.DomainVerified,
		&t.SSLEnabled, &t.LastDomainCheckAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to scan tenant: %w", err)
	}
	return &t, nil
}

func (r *TenantRepository) scanAll(rows pgx.Rows) ([]*tenant.Tenant, error) {
	var tenants []*tenant.Tenant
	for rows.Next() {
		var t tenant.Tenant
		if err := rows.Scan(&t.ID, &t.Slug, &t.Name, &t.CustomDomain, &t.DomainVerified,
			&t.SSLEnabled, &t.LastDomainCheckAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, &t)
	}
	return tenants, rows.Err()
}
