package model

import "time"

// Status is the lifecycle state shared by documents and their versions.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Document is a logical article owned by a single tenant.
// Status mirrors the version lifecycle for quick filtering and is always
// derived through DeriveDocumentStatus; ActiveVersionID, when set, points
// at an APPROVED version of this document.
type Document struct {
	ID              string      `json:"id"`
	TenantID        string      `json:"tenant_id"`
	Name            string      `json:"name"`
	Description     string      `json:"description"`
	MimeType        string      `json:"mime_type"`
	Status          Status      `json:"status"`
	ActiveVersionID *string     `json:"active_version_id"`
	SubmittedBy     string      `json:"submitted_by"`
	AccessTags      []AccessTag `json:"access_tags"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// DocumentVersion is one submitted revision of a document's content.
// Versions are created PENDING; APPROVED and REJECTED are terminal.
type DocumentVersion struct {
	ID              string     `json:"id"`
	DocumentID      string     `json:"document_id"`
	VersionNumber   int        `json:"version_number"`
	Status          Status     `json:"status"`
	FileURL         string     `json:"file_url"`
	OriginalName    string     `json:"original_name"`
	FileSize        int64      `json:"file_size"`
	MimeType        string     `json:"mime_type"`
	ApprovedBy      *string    `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectedBy      *string    `json:"rejected_by,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	CreatedBy       string     `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Chunk is one retrieval unit produced from an approved version.
type Chunk struct {
	ID                string    `json:"id"`
	DocumentVersionID string    `json:"document_version_id"`
	DocumentID        string    `json:"document_id"`
	Ordinal           int       `json:"ordinal"`
	Content           string    `json:"content"`
	Embedding         []float32 `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
}

// AccessTag scopes document visibility within a tenant.
type AccessTag struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
}

// SubmitMetadata carries the declared attributes of a submission.
// DocumentID is empty for a brand new document and set for a resubmission.
type SubmitMetadata struct {
	DocumentID   string
	Name         string
	Description  string
	MimeType     string
	OriginalName string
	Size         int64
	Tags         []string
}

// DeriveDocumentStatus computes a document's status from its version state:
// APPROVED when an active version exists, REJECTED when the latest version
// was rejected and nothing is pending, PENDING otherwise.
func DeriveDocumentStatus(hasActive bool, latest Status, hasPending bool) Status {
	if hasActive {
		return StatusApproved
	}
	if latest == StatusRejected && !hasPending {
		return StatusRejected
	}
	return StatusPending
}
