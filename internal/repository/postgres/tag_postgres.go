package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"kbapi/internal/database"
	"kbapi/internal/model"
	"kbapi/internal/repository"
)

// AccessTagPostgres is a PostgreSQL implementation of repository.AccessTagRepository.
type AccessTagPostgres struct {
	db *sql.DB
}

// NewAccessTagPostgres creates a new AccessTagPostgres repository.
func NewAccessTagPostgres(db *sql.DB) *AccessTagPostgres {
	return &AccessTagPostgres{db: db}
}

var _ repository.AccessTagRepository = (*AccessTagPostgres)(nil)

// Ensure upserts each name and returns the tenant's tags in input order.
func (r *AccessTagPostgres) Ensure(ctx context.Context, tenantID string, names []string) ([]model.AccessTag, error) {
	const q = `
		INSERT INTO access_tags (tenant_id, name) VALUES ($1, $2)
		ON CONFLICT (tenant_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, tenant_id, name`
	conn := database.Conn(ctx, r.db)
	out := make([]model.AccessTag, 0, len(names))
	for _, name := range names {
		var t model.AccessTag
		if err := conn.QueryRowContext(ctx, q, tenantID, name).Scan(&t.ID, &t.TenantID, &t.Name); err != nil {
			return nil, fmt.Errorf("ensure tag %q: %w", name, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// SetDocumentTags replaces the document's tag links.
func (r *AccessTagPostgres) SetDocumentTags(ctx context.Context, documentID string, tagIDs []string) error {
	conn := database.Conn(ctx, r.db)
	if _, err := conn.ExecContext(ctx, `DELETE FROM document_access_tags WHERE document_id = $1`, documentID); err != nil {
		return err
	}
	const q = `INSERT INTO document_access_tags (document_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	for _, id := range tagIDs {
		if _, err := conn.ExecContext(ctx, q, documentID, id); err != nil {
			return err
		}
	}
	return nil
}

// DocumentTags returns the tags a reader needs to see the document.
func (r *AccessTagPostgres) DocumentTags(ctx context.Context, documentID string) ([]model.AccessTag, error) {
	const q = `
		SELECT t.id, t.tenant_id, t.name
		FROM document_access_tags dt
		JOIN access_tags t ON t.id = dt.tag_id
		WHERE dt.document_id = $1
		ORDER BY t.name`
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTags(rows)
}

// DocumentTagsBatch returns tags for several documents keyed by document id.
func (r *AccessTagPostgres) DocumentTagsBatch(ctx context.Context, documentIDs []string) (map[string][]model.AccessTag, error) {
	out := make(map[string][]model.AccessTag, len(documentIDs))
	if len(documentIDs) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(documentIDs))
	args := make([]any, len(documentIDs))
	for i, id := range documentIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	q := `
		SELECT dt.document_id, t.id, t.tenant_id, t.name
		FROM document_access_tags dt
		JOIN access_tags t ON t.id = dt.tag_id
		WHERE dt.document_id IN (` + strings.Join(placeholders, ", ") + `)
		ORDER BY t.name`

	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var docID string
		var t model.AccessTag
		if err := rows.Scan(&docID, &t.ID, &t.TenantID, &t.Name); err != nil {
			return nil, err
		}
		out[docID] = append(out[docID], t)
	}
	return out, rows.Err()
}

// MemberTags returns the tags granted to a member.
func (r *AccessTagPostgres) MemberTags(ctx context.Context, tenantID, userID string) ([]model.AccessTag, error) {
	const q = `
		SELECT t.id, t.tenant_id, t.name
		FROM member_access_tags mt
		JOIN access_tags t ON t.id = mt.tag_id AND t.tenant_id = mt.tenant_id
		WHERE mt.tenant_id = $1 AND mt.user_id = $2
		ORDER BY t.name`
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, q, tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTags(rows)
}

// Grant adds tag grants, ignoring ones already present.
func (r *AccessTagPostgres) Grant(ctx context.Context, tenantID, userID string, tagIDs []string) error {
	const q = `INSERT INTO member_access_tags (tenant_id, user_id, tag_id) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	conn := database.Conn(ctx, r.db)
	for _, id := range tagIDs {
		if _, err := conn.ExecContext(ctx, q, tenantID, userID, id); err != nil {
			return err
		}
	}
	return nil
}

// Revoke removes tag grants.
func (r *AccessTagPostgres) Revoke(ctx context.Context, tenantID, userID string, tagIDs []string) error {
	const q = `DELETE FROM member_access_tags WHERE tenant_id = $1 AND user_id = $2 AND tag_id = $3`
	conn := database.Conn(ctx, r.db)
	for _, id := range tagIDs {
		if _, err := conn.ExecContext(ctx, q, tenantID, userID, id); err != nil {
			return err
		}
	}
	return nil
}

func scanTags(rows *sql.Rows) ([]model.AccessTag, error) {
	out := make([]model.AccessTag, 0)
	for rows.Next() {
		var t model.AccessTag
		if err := rows.Scan(&t.ID, &t.TenantID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
