package repository

import (
	"context"

	"kbapi/internal/model"
)

// TenantRepository resolves tenants.
type TenantRepository interface {
	FindBySubdomain(ctx context.Context, subdomain string) (*model.Tenant, error)
}

// MemberRepository resolves tenant memberships.
type MemberRepository interface {
	// Find returns the membership for (tenantID, userID) or sql.ErrNoRows.
	Find(ctx context.Context, tenantID, userID string) (*model.TenantMember, error)
}

// AccessTagRepository manages tags, their document links and member grants.
type AccessTagRepository interface {
	// Ensure returns the tenant's tags with the given names, creating missing ones.
	Ensure(ctx context.Context, tenantID string, names []string) ([]model.AccessTag, error)

	// SetDocumentTags replaces the tag links of a document.
	SetDocumentTags(ctx context.Context, documentID string, tagIDs []string) error

	// DocumentTags returns the tags required by a document.
	DocumentTags(ctx context.Context, documentID string) ([]model.AccessTag, error)

	// DocumentTagsBatch returns required tags keyed by document id.
	DocumentTagsBatch(ctx context.Context, documentIDs []string) (map[string][]model.AccessTag, error)

	// MemberTags returns the tags granted to a member of a tenant.
	MemberTags(ctx context.Context, tenantID, userID string) ([]model.AccessTag, error)

	// Grant adds tag grants to a member.
	Grant(ctx context.Context, tenantID, userID string, tagIDs []string) error

	// Revoke removes tag grants from a member.
	Revoke(ctx context.Context, tenantID, userID string, tagIDs []string) error
}
