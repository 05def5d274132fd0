package postgres

import (
	"context"
	"database/sql"

	"kbapi/internal/database"
	"kbapi/internal/model"
	"kbapi/internal/repository"
)

// TenantPostgres resolves tenants and memberships.
type TenantPostgres struct {
	db *sql.DB
}

// NewTenantPostgres creates a new TenantPostgres repository.
func NewTenantPostgres(db *sql.DB) *TenantPostgres {
	return &TenantPostgres{db: db}
}

var (
	_ repository.TenantRepository = (*TenantPostgres)(nil)
	_ repository.MemberRepository = (*TenantPostgres)(nil)
)

// FindBySubdomain returns the tenant routed by subdomain.
func (r *TenantPostgres) FindBySubdomain(ctx context.Context, subdomain string) (*model.Tenant, error) {
	const q = `SELECT id, name, subdomain, created_at FROM tenants WHERE subdomain = $1`
	var t model.Tenant
	if err := database.Conn(ctx, r.db).QueryRowContext(ctx, q, subdomain).Scan(
		&t.ID,
		&t.Name,
		&t.Subdomain,
		&t.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}

// Find returns the membership binding userID to tenantID.
func (r *TenantPostgres) Find(ctx context.Context, tenantID, userID string) (*model.TenantMember, error) {
	const q = `SELECT user_id, tenant_id, role, created_at FROM tenant_members WHERE tenant_id = $1 AND user_id = $2`
	var m model.TenantMember
	if err := database.Conn(ctx, r.db).QueryRowContext(ctx, q, tenantID, userID).Scan(
		&m.UserID,
		&m.TenantID,
		&m.Role,
		&m.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}
