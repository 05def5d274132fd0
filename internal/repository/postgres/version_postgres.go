package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kbapi/internal/database"
	"kbapi/internal/model"
	"kbapi/internal/repository"
)

// pendingIndex is the partial unique index allowing one PENDING version per document.
const pendingIndex = "uq_document_versions_pending"

// VersionPostgres is a PostgreSQL implementation of repository.VersionRepository.
// Status transitions are compare-and-swap updates guarded by status = 'PENDING'.
type VersionPostgres struct {
	db *sql.DB
}

// NewVersionPostgres creates a new VersionPostgres repository.
func NewVersionPostgres(db *sql.DB) *VersionPostgres {
	return &VersionPostgres{db: db}
}

var _ repository.VersionRepository = (*VersionPostgres)(nil)

const versionColumns = `id, document_id, version_number, status, file_url, original_name, file_size, mime_type,
	approved_by, approved_at, rejected_by, rejection_reason, rejected_at, created_by, created_at`

func scanVersion(row interface{ Scan(...any) error }) (*model.DocumentVersion, error) {
	var v model.DocumentVersion
	if err := row.Scan(
		&v.ID,
		&v.DocumentID,
		&v.VersionNumber,
		&v.Status,
		&v.FileURL,
		&v.OriginalName,
		&v.FileSize,
		&v.MimeType,
		&v.ApprovedBy,
		&v.ApprovedAt,
		&v.RejectedBy,
		&v.RejectionReason,
		&v.RejectedAt,
		&v.CreatedBy,
		&v.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &v, nil
}

// Create inserts a PENDING version.
func (r *VersionPostgres) Create(ctx context.Context, v *model.DocumentVersion) (*model.DocumentVersion, error) {
	const q = `
		INSERT INTO document_versions (id, document_id, version_number, status, file_url, original_name, file_size, mime_type, created_by, created_at)
		VALUES ($1, $2, $3, 'PENDING', $4, $5, $6, $7, $8, $9)
		RETURNING ` + versionColumns
	row := database.Conn(ctx, r.db).QueryRowContext(ctx, q,
		v.ID,
		v.DocumentID,
		v.VersionNumber,
		v.FileURL,
		v.OriginalName,
		v.FileSize,
		v.MimeType,
		v.CreatedBy,
		v.CreatedAt,
	)
	out, err := scanVersion(row)
	if err != nil {
		if isUniqueViolation(err, pendingIndex) {
			return nil, model.ErrPendingExists
		}
		if isUniqueViolation(err, "") {
			return nil, fmt.Errorf("%w: version %d already exists", model.ErrConflict, v.VersionNumber)
		}
		return nil, err
	}
	return out, nil
}

// FindByID fetches a version belonging to documentID.
func (r *VersionPostgres) FindByID(ctx context.Context, documentID, id string) (*model.DocumentVersion, error) {
	const q = `SELECT ` + versionColumns + ` FROM document_versions WHERE id = $1 AND document_id = $2`
	return scanVersion(database.Conn(ctx, r.db).QueryRowContext(ctx, q, id, documentID))
}

// ListByDocument returns the version history, newest first.
func (r *VersionPostgres) ListByDocument(ctx context.Context, documentID string) ([]model.DocumentVersion, error) {
	const q = `SELECT ` + versionColumns + ` FROM document_versions WHERE document_id = $1 ORDER BY version_number DESC`
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.DocumentVersion, 0)
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// HasPending reports whether a PENDING version exists.
func (r *VersionPostgres) HasPending(ctx context.Context, documentID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM document_versions WHERE document_id = $1 AND status = 'PENDING')`
	var ok bool
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, q, documentID).Scan(&ok)
	return ok, err
}

// MaxVersionNumber returns the highest version number of a document.
func (r *VersionPostgres) MaxVersionNumber(ctx context.Context, documentID string) (int, error) {
	const q = `SELECT COALESCE(MAX(version_number), 0) FROM document_versions WHERE document_id = $1`
	var n int
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, q, documentID).Scan(&n)
	return n, err
}

// MarkApproved performs the PENDING -> APPROVED swap.
func (r *VersionPostgres) MarkApproved(ctx context.Context, documentID, id, approvedBy string, at time.Time) (*model.DocumentVersion, error) {
	const q = `
		UPDATE document_versions
		SET status = 'APPROVED', approved_by = $3, approved_at = $4
		WHERE id = $1 AND document_id = $2 AND status = 'PENDING'
		RETURNING ` + versionColumns
	return scanVersion(database.Conn(ctx, r.db).QueryRowContext(ctx, q, id, documentID, approvedBy, at))
}

// MarkRejected performs the PENDING -> REJECTED swap on the document's pending version.
func (r *VersionPostgres) MarkRejected(ctx context.Context, documentID, rejectedBy, reason string, at time.Time) (*model.DocumentVersion, error) {
	const q = `
		UPDATE document_versions
		SET status = 'REJECTED', rejected_by = $2, rejection_reason = $3, rejected_at = $4
		WHERE document_id = $1 AND status = 'PENDING'
		RETURNING ` + versionColumns
	return scanVersion(database.Conn(ctx, r.db).QueryRowContext(ctx, q, documentID, rejectedBy, reason, at))
}

// FindActive returns the approved version the document currently serves.
func (r *VersionPostgres) FindActive(ctx context.Context, documentID string) (*model.DocumentVersion, error) {
	const q = `
		SELECT v.id, v.document_id, v.version_number, v.status, v.file_url, v.original_name, v.file_size, v.mime_type,
			v.approved_by, v.approved_at, v.rejected_by, v.rejection_reason, v.rejected_at, v.created_by, v.created_at
		FROM documents d
		JOIN document_versions v ON v.id = d.active_version_id AND v.document_id = d.id
		WHERE d.id = $1 AND v.status = 'APPROVED'`
	return scanVersion(database.Conn(ctx, r.db).QueryRowContext(ctx, q, documentID))
}
