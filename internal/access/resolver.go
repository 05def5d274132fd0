// Package access decides which tenant members may read which documents.
//
// The check has two explicit steps: the ADMIN role short-circuits, then the
// document's required tags are intersected with the member's granted tags.
// A document without tags is visible to every member of its tenant.
package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"kbapi/internal/model"
	"kbapi/internal/repository"
)

// Resolver evaluates read access for documents.
type Resolver struct {
	members repository.MemberRepository
	docs    repository.DocumentRepository
	tags    repository.AccessTagRepository
}

// NewResolver creates a Resolver.
func NewResolver(members repository.MemberRepository, docs repository.DocumentRepository, tags repository.AccessTagRepository) *Resolver {
	return &Resolver{members: members, docs: docs, tags: tags}
}

// membership returns nil without error when the user is not a member.
func (r *Resolver) membership(ctx context.Context, tenantID, userID string) (*model.TenantMember, error) {
	m, err := r.members.Find(ctx, tenantID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve membership: %w", err)
	}
	return m, nil
}

// CanAccess reports whether userID may read documentID in tenantID.
// It fails closed: no membership means false. A document outside the tenant
// is model.ErrDocumentNotFound.
func (r *Resolver) CanAccess(ctx context.Context, userID, tenantID, documentID string) (bool, error) {
	m, err := r.membership(ctx, tenantID, userID)
	if err != nil || m == nil {
		return false, err
	}
	if m.IsAdmin() {
		return true, nil
	}

	if _, err := r.docs.FindByID(ctx, tenantID, documentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, model.ErrDocumentNotFound
		}
		return false, err
	}

	required, err := r.tags.DocumentTags(ctx, documentID)
	if err != nil {
		return false, fmt.Errorf("load document tags: %w", err)
	}
	if len(required) == 0 {
		return true, nil
	}

	granted, err := r.tags.MemberTags(ctx, tenantID, userID)
	if err != nil {
		return false, fmt.Errorf("load granted tags: %w", err)
	}
	return intersects(required, tagSet(granted)), nil
}

// Filter keeps the documents userID may read and attaches their tags.
// Non-members get an empty result.
func (r *Resolver) Filter(ctx context.Context, userID, tenantID string, docs []model.Document) ([]model.Document, error) {
	m, err := r.membership(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if m == nil || len(docs) == 0 {
		return []model.Document{}, nil
	}

	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	required, err := r.tags.DocumentTagsBatch(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load document tags: %w", err)
	}

	var granted map[string]struct{}
	if !m.IsAdmin() {
		tags, err := r.tags.MemberTags(ctx, tenantID, userID)
		if err != nil {
			return nil, fmt.Errorf("load granted tags: %w", err)
		}
		granted = tagSet(tags)
	}

	out := make([]model.Document, 0, len(docs))
	for _, d := range docs {
		if d.TenantID != tenantID {
			continue
		}
		d.AccessTags = required[d.ID]
		if m.IsAdmin() || len(d.AccessTags) == 0 || intersects(d.AccessTags, granted) {
			out = append(out, d)
		}
	}
	return out, nil
}

// Grant gives a member the named tags, creating tags that do not exist yet.
func (r *Resolver) Grant(ctx context.Context, tenantID, userID string, names []string) error {
	m, err := r.membership(ctx, tenantID, userID)
	if err != nil {
		return err
	}
	if m == nil {
		return model.ErrMemberNotFound
	}
	tags, err := r.tags.Ensure(ctx, tenantID, names)
	if err != nil {
		return err
	}
	return r.tags.Grant(ctx, tenantID, userID, tagIDs(tags))
}

// Revoke removes the named tags from a member. Unknown names are ignored.
func (r *Resolver) Revoke(ctx context.Context, tenantID, userID string, names []string) error {
	m, err := r.membership(ctx, tenantID, userID)
	if err != nil {
		return err
	}
	if m == nil {
		return model.ErrMemberNotFound
	}
	granted, err := r.tags.MemberTags(ctx, tenantID, userID)
	if err != nil {
		return err
	}
	wanted := make(map[string]struct{}, len(names))
	for _, n := range names {
		wanted[n] = struct{}{}
	}
	var ids []string
	for _, t := range granted {
		if _, ok := wanted[t.Name]; ok {
			ids = append(ids, t.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return r.tags.Revoke(ctx, tenantID, userID, ids)
}

func tagSet(tags []model.AccessTag) map[string]struct{} {
	s := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		s[t.ID] = struct{}{}
	}
	return s
}

func intersects(required []model.AccessTag, granted map[string]struct{}) bool {
	for _, t := range required {
		if _, ok := granted[t.ID]; ok {
			return true
		}
	}
	return false
}

func tagIDs(tags []model.AccessTag) []string {
	ids := make([]string, len(tags))
	for i, t := range tags {
		ids[i] = t.ID
	}
	return ids
}
