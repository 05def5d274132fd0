package model

import (
	"errors"
	"fmt"
)

// Error classes. Every error produced by the lifecycle core wraps exactly one
// of these so the HTTP layer can map it with errors.Is.
var (
	ErrUnauthorized      = errors.New("not permitted")
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrConflict          = errors.New("conflict")
	ErrValidation        = errors.New("validation failed")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrExtractionFailed  = errors.New("text extraction failed")
	ErrEmptyContent      = errors.New("extracted content is empty")
	ErrEmbeddingFailed   = errors.New("embedding failed")
	ErrAlreadyInProgress = errors.New("ingestion already in progress")
)

// Specific failures.
var (
	ErrNoMembership      = fmt.Errorf("%w: no membership in tenant", ErrUnauthorized)
	ErrAdminRequired     = fmt.Errorf("%w: admin role required", ErrUnauthorized)
	ErrTenantNotFound    = fmt.Errorf("%w: tenant", ErrNotFound)
	ErrMemberNotFound    = fmt.Errorf("%w: tenant member", ErrNotFound)
	ErrDocumentNotFound  = fmt.Errorf("%w: document", ErrNotFound)
	ErrVersionNotFound   = fmt.Errorf("%w: document version", ErrNotFound)
	ErrNoActiveVersion   = fmt.Errorf("%w: no approved version", ErrNotFound)
	ErrVersionNotPending = fmt.Errorf("%w: version is not pending", ErrInvalidState)
	ErrNoPendingVersion  = fmt.Errorf("%w: document has no pending version", ErrInvalidState)
	ErrReasonRequired    = fmt.Errorf("%w: rejection reason is required", ErrInvalidState)
	ErrPendingExists     = fmt.Errorf("%w: document already has a pending version", ErrConflict)
	ErrNameRequired      = fmt.Errorf("%w: name is required", ErrValidation)
	ErrMimeTypeRequired  = fmt.Errorf("%w: mime type is required", ErrValidation)
	ErrFileRequired      = fmt.Errorf("%w: file is required", ErrValidation)
)
