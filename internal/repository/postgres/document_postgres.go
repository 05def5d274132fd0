package postgres

import (
	"context"
	"database/sql"

	"kbapi/internal/database"
	"kbapi/internal/model"
	"kbapi/internal/repository"
)

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

const documentColumns = `id, tenant_id, name, description, mime_type, status, active_version_id, submitted_by, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (*model.Document, error) {
	var d model.Document
	if err := row.Scan(
		&d.ID,
		&d.TenantID,
		&d.Name,
		&d.Description,
		&d.MimeType,
		&d.Status,
		&d.ActiveVersionID,
		&d.SubmittedBy,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &d, nil
}

// Create inserts a new document row and returns the stored record.
func (r *DocumentPostgres) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	const q = `
		INSERT INTO documents (id, tenant_id, name, description, mime_type, status, submitted_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING ` + documentColumns
	row := database.Conn(ctx, r.db).QueryRowContext(ctx, q,
		doc.ID,
		doc.TenantID,
		doc.Name,
		doc.Description,
		doc.MimeType,
		doc.Status,
		doc.SubmittedBy,
		doc.CreatedAt,
	)
	return scanDocument(row)
}

// FindByID fetches a single document by its ID within a tenant.
func (r *DocumentPostgres) FindByID(ctx context.Context, tenantID, id string) (*model.Document, error) {
	const q = `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 AND tenant_id = $2`
	return scanDocument(database.Conn(ctx, r.db).QueryRowContext(ctx, q, id, tenantID))
}

// FindForUpdate fetches a document and locks its row for the current transaction.
func (r *DocumentPostgres) FindForUpdate(ctx context.Context, tenantID, id string) (*model.Document, error) {
	const q = `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 AND tenant_id = $2 FOR UPDATE`
	return scanDocument(database.Conn(ctx, r.db).QueryRowContext(ctx, q, id, tenantID))
}

// visibleTo applies the access tag rule for the user in $3 so that pages and
// totals count only documents the user may read. An empty $3 disables it.
const visibleTo = `($3::text = ''
		OR NOT EXISTS (SELECT 1 FROM document_access_tags dt WHERE dt.document_id = documents.id)
		OR EXISTS (
			SELECT 1 FROM document_access_tags dt
			JOIN member_access_tags mt ON mt.tag_id = dt.tag_id
			WHERE dt.document_id = documents.id
			  AND mt.tenant_id = documents.tenant_id
			  AND mt.user_id::text = $3))`

// List returns documents using LIMIT/OFFSET pagination and a total count.
func (r *DocumentPostgres) List(ctx context.Context, tenantID string, f repository.DocumentFilter) (*repository.PageResult[model.Document], error) {
	conn := database.Conn(ctx, r.db)

	const qCount = `SELECT COUNT(*) FROM documents WHERE tenant_id = $1 AND ($2 = '' OR status = $2) AND ` + visibleTo
	var total int
	if err := conn.QueryRowContext(ctx, qCount, tenantID, string(f.Status), f.VisibleTo).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `SELECT ` + documentColumns + `
		FROM documents
		WHERE tenant_id = $1 AND ($2 = '' OR status = $2) AND ` + visibleTo + `
		ORDER BY updated_at DESC, id DESC
		LIMIT $4 OFFSET $5`
	rows, err := conn.QueryContext(ctx, qList, tenantID, string(f.Status), f.VisibleTo, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Document]{
		Items: items,
		Total: total,
	}, nil
}

// UpdateStatus sets the derived status. The active version pointer is left as is.
func (r *DocumentPostgres) UpdateStatus(ctx context.Context, id string, status model.Status) error {
	const q = `UPDATE documents SET status = $2, updated_at = now() WHERE id = $1`
	return execOne(ctx, database.Conn(ctx, r.db), q, id, status)
}

// SetActiveVersion repoints the active version and the status in a single statement.
// The version must belong to the document and be APPROVED.
func (r *DocumentPostgres) SetActiveVersion(ctx context.Context, id, versionID string, status model.Status) error {
	const q = `
		UPDATE documents SET active_version_id = $2, status = $3, updated_at = now()
		WHERE id = $1
		  AND EXISTS (
		    SELECT 1 FROM document_versions v
		    WHERE v.id = $2 AND v.document_id = $1 AND v.status = 'APPROVED'
		  )`
	return execOne(ctx, database.Conn(ctx, r.db), q, id, versionID, status)
}

// Delete removes a document by ID within a tenant.
func (r *DocumentPostgres) Delete(ctx context.Context, tenantID, id string) error {
	const q = `DELETE FROM documents WHERE id = $1 AND tenant_id = $2`
	return execOne(ctx, database.Conn(ctx, r.db), q, id, tenantID)
}

// execOne runs a statement expected to touch exactly one row and reports
// sql.ErrNoRows otherwise.
func execOne(ctx context.Context, conn database.DBTX, q string, args ...any) error {
	res, err := conn.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
