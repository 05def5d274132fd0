package repository

import (
	"context"
	"time"

	"kbapi/internal/model"
)

// DocumentFilter narrows document listings within one tenant.
type DocumentFilter struct {
	Status model.Status
	// VisibleTo, when set, keeps only documents without access tags or
	// sharing a tag granted to this user.
	VisibleTo string
	PageQuery
}

// DocumentRepository defines data access for documents using SQL queries only.
// No business logic here, strictly persistence operations.
// Every lookup is scoped by tenant id; a row from another tenant is reported
// as sql.ErrNoRows.
type DocumentRepository interface {
	// Create inserts a new document record and returns the stored row.
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// FindByID returns a document by its ID within a tenant.
	FindByID(ctx context.Context, tenantID, id string) (*model.Document, error)

	// FindForUpdate is FindByID holding a row lock until the surrounding transaction ends.
	FindForUpdate(ctx context.Context, tenantID, id string) (*model.Document, error)

	// List returns a page of documents and the total count for the filter.
	List(ctx context.Context, tenantID string, f DocumentFilter) (*PageResult[model.Document], error)

	// UpdateStatus sets the derived status without touching the active version.
	UpdateStatus(ctx context.Context, id string, status model.Status) error

	// SetActiveVersion repoints the active version and status in one statement.
	SetActiveVersion(ctx context.Context, id, versionID string, status model.Status) error

	// Delete removes a document; versions, chunks and tag links cascade.
	Delete(ctx context.Context, tenantID, id string) error
}

// VersionRepository defines data access for document versions.
type VersionRepository interface {
	// Create inserts a new PENDING version. A second pending version for the
	// same document surfaces as model.ErrPendingExists.
	Create(ctx context.Context, v *model.DocumentVersion) (*model.DocumentVersion, error)

	// FindByID returns a version belonging to documentID.
	FindByID(ctx context.Context, documentID, id string) (*model.DocumentVersion, error)

	// ListByDocument returns all versions ordered by version number descending.
	ListByDocument(ctx context.Context, documentID string) ([]model.DocumentVersion, error)

	// HasPending reports whether the document has a PENDING version.
	HasPending(ctx context.Context, documentID string) (bool, error)

	// MaxVersionNumber returns the highest version number, 0 when none exist.
	MaxVersionNumber(ctx context.Context, documentID string) (int, error)

	// MarkApproved flips a PENDING version to APPROVED. It returns
	// sql.ErrNoRows when the version is missing or no longer PENDING.
	MarkApproved(ctx context.Context, documentID, id, approvedBy string, at time.Time) (*model.DocumentVersion, error)

	// MarkRejected flips the document's PENDING version to REJECTED. It
	// returns sql.ErrNoRows when nothing is pending.
	MarkRejected(ctx context.Context, documentID, rejectedBy, reason string, at time.Time) (*model.DocumentVersion, error)

	// FindActive returns the APPROVED version referenced by the document's
	// active version pointer.
	FindActive(ctx context.Context, documentID string) (*model.DocumentVersion, error)
}

// ChunkRepository persists retrieval chunks for document versions.
type ChunkRepository interface {
	// Replace deletes any chunks of versionID and inserts chunks atomically.
	Replace(ctx context.Context, documentID, versionID string, chunks []model.Chunk) error

	// DeleteByVersion removes every chunk of versionID.
	DeleteByVersion(ctx context.Context, versionID string) (int64, error)

	// DeleteUnapproved removes the chunks of versionID unless the version is
	// APPROVED. Ingestion cleanup uses it so a late cleanup never strips an
	// approved version.
	DeleteUnapproved(ctx context.Context, versionID string) (int64, error)

	// CountByVersion returns the number of chunks stored for versionID.
	CountByVersion(ctx context.Context, versionID string) (int, error)
}
