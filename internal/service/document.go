package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"kbapi/internal/events"
	"kbapi/internal/extract"
	"kbapi/internal/logging"
	"kbapi/internal/model"
	"kbapi/internal/repository"
	"kbapi/internal/storage"
)

var (
	ErrIDRequired = fmt.Errorf("%w: id is required", model.ErrValidation)
	ErrTooLarge   = fmt.Errorf("%w: file exceeds %d bytes", model.ErrValidation, extract.MaxFileBytes)
	ErrBadStatus  = fmt.Errorf("%w: unknown status", model.ErrValidation)
)

const (
	defaultLimit   = 20
	maxLimit       = 100
	downloadExpiry = 15 * time.Minute
	publishTimeout = 3 * time.Second
)

// DocumentListResult is the service-level DTO for paginated documents.
type DocumentListResult struct {
	Items []model.Document `json:"data"`
	Total int              `json:"total"`
}

// ListFilter selects documents. An empty Status lists all. A non-empty
// VisibleTo restricts the page and the total to documents that user may read
// by access tags.
type ListFilter struct {
	Status    model.Status
	VisibleTo string
	Limit     int
	Offset    int
}

// DocumentService defines the document lifecycle use cases exposed to handlers.
// Approval is reachable only through VersionApprover.
type DocumentService interface {
	// Submit uploads the file, then records a new document or a new version of
	// an existing one as PENDING. The upload is removed if the DB work fails.
	Submit(ctx context.Context, tenantID, userID string, r io.Reader, meta model.SubmitMetadata) (*model.DocumentVersion, error)

	// Reject moves the document's PENDING version to REJECTED.
	Reject(ctx context.Context, tenantID, documentID, reason, adminUserID string) (*model.DocumentVersion, error)

	// GetActive returns the APPROVED version served to readers.
	GetActive(ctx context.Context, tenantID, documentID string) (*model.DocumentVersion, error)

	// Get returns a document with its access tags.
	Get(ctx context.Context, tenantID, documentID string) (*model.Document, error)

	// GetVersion returns one version of a document.
	GetVersion(ctx context.Context, tenantID, documentID, versionID string) (*model.DocumentVersion, error)

	// ListVersions returns the version history, newest first.
	ListVersions(ctx context.Context, tenantID, documentID string) ([]model.DocumentVersion, error)

	// List returns a page of documents with their access tags.
	List(ctx context.Context, tenantID string, f ListFilter) (*DocumentListResult, error)

	// Delete removes a document with its versions and chunks, then its files.
	Delete(ctx context.Context, tenantID, documentID, adminUserID string) error

	// SetTags replaces the access tags of a document, creating missing tags.
	SetTags(ctx context.Context, tenantID, documentID string, names []string, adminUserID string) ([]model.AccessTag, error)

	// DownloadURL returns a short-lived link to the version's original file.
	DownloadURL(ctx context.Context, v *model.DocumentVersion) (string, error)

	// RequireAdmin fails unless userID is an ADMIN of tenantID.
	RequireAdmin(ctx context.Context, tenantID, userID string) error
}

// VersionApprover adds the approve transition. Only the ingestion
// orchestrator is given this interface, and it calls Approve only after
// the version's chunks are written.
type VersionApprover interface {
	DocumentService

	// Approve moves a PENDING version to APPROVED and makes it active.
	Approve(ctx context.Context, tenantID, documentID, versionID, adminUserID string) (*model.DocumentVersion, error)

	// LockPending locks the document row for the surrounding transaction
	// and fails unless versionID is still PENDING.
	LockPending(ctx context.Context, tenantID, documentID, versionID string) error
}

// Deps groups the collaborators of the document service.
type Deps struct {
	Tx       repository.TxManager
	Docs     repository.DocumentRepository
	Versions repository.VersionRepository
	Chunks   repository.ChunkRepository
	Members  repository.MemberRepository
	Tags     repository.AccessTagRepository
	Storage  storage.Storage
	Events   events.Publisher
	Logger   *log.Logger
}

// documentService is a concrete implementation of VersionApprover.
type documentService struct {
	tx       repository.TxManager
	docs     repository.DocumentRepository
	versions repository.VersionRepository
	chunks   repository.ChunkRepository
	members  repository.MemberRepository
	tags     repository.AccessTagRepository
	store    storage.Storage
	events   events.Publisher
	logger   *log.Logger
	now      func() time.Time

	publishTimeout time.Duration
}

// NewDocumentService constructs a new document service.
func NewDocumentService(d Deps) VersionApprover {
	s := &documentService{
		tx:       d.Tx,
		docs:     d.Docs,
		versions: d.Versions,
		chunks:   d.Chunks,
		members:  d.Members,
		tags:     d.Tags,
		store:    d.Storage,
		events:   d.Events,
		logger:   d.Logger,
		now:      func() time.Time { return time.Now().UTC() },

		publishTimeout: publishTimeout,
	}
	if s.events == nil {
		s.events = events.Noop{}
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	return s
}

func (s *documentService) RequireAdmin(ctx context.Context, tenantID, userID string) error {
	m, err := s.member(ctx, tenantID, userID)
	if err != nil {
		return err
	}
	if !m.IsAdmin() {
		return model.ErrAdminRequired
	}
	return nil
}

func (s *documentService) member(ctx context.Context, tenantID, userID string) (*model.TenantMember, error) {
	m, err := s.members.Find(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNoMembership
		}
		return nil, fmt.Errorf("resolve membership: %w", err)
	}
	return m, nil
}

func (s *documentService) Submit(ctx context.Context, tenantID, userID string, r io.Reader, meta model.SubmitMetadata) (*model.DocumentVersion, error) {
	if r == nil {
		return nil, model.ErrFileRequired
	}
	meta.Name = strings.TrimSpace(meta.Name)
	meta.MimeType = strings.TrimSpace(meta.MimeType)
	if meta.DocumentID == "" && meta.Name == "" {
		return nil, model.ErrNameRequired
	}
	if meta.MimeType == "" {
		return nil, model.ErrMimeTypeRequired
	}
	if meta.Size > extract.MaxFileBytes {
		return nil, ErrTooLarge
	}
	if _, err := s.member(ctx, tenantID, userID); err != nil {
		return nil, err
	}

	// The version number is read before the upload so the object key can
	// carry it; it is verified again under the document row lock.
	documentID := meta.DocumentID
	number := 1
	if documentID == "" {
		documentID = uuid.NewString()
	} else {
		if _, err := s.findDocument(ctx, tenantID, documentID); err != nil {
			return nil, err
		}
		pending, err := s.versions.HasPending(ctx, documentID)
		if err != nil {
			return nil, err
		}
		if pending {
			return nil, model.ErrPendingExists
		}
		latest, err := s.versions.MaxVersionNumber(ctx, documentID)
		if err != nil {
			return nil, err
		}
		number = latest + 1
	}

	key := storage.ObjectKey(tenantID, documentID, number, meta.OriginalName)
	objInfo, err := s.store.Put(ctx, key, r, storage.PutObjectOptions{
		Size:        meta.Size,
		ContentType: meta.MimeType,
		Metadata: map[string]string{
			"original-filename": meta.OriginalName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("upload to storage: %w", err)
	}

	now := s.now()
	var created *model.DocumentVersion
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if meta.DocumentID == "" {
			doc := &model.Document{
				ID:          documentID,
				TenantID:    tenantID,
				Name:        meta.Name,
				Description: strings.TrimSpace(meta.Description),
				MimeType:    meta.MimeType,
				Status:      model.StatusPending,
				SubmittedBy: userID,
				CreatedAt:   now,
			}
			if _, err := s.docs.Create(ctx, doc); err != nil {
				return err
			}
			if len(meta.Tags) > 0 {
				if _, err := s.replaceTags(ctx, tenantID, documentID, meta.Tags); err != nil {
					return err
				}
			}
		} else {
			doc, err := s.lockDocument(ctx, tenantID, documentID)
			if err != nil {
				return err
			}
			pending, err := s.versions.HasPending(ctx, documentID)
			if err != nil {
				return err
			}
			if pending {
				return model.ErrPendingExists
			}
			latest, err := s.versions.MaxVersionNumber(ctx, documentID)
			if err != nil {
				return err
			}
			if latest+1 != number {
				return fmt.Errorf("%w: version %d was submitted concurrently", model.ErrConflict, number)
			}
			status := model.DeriveDocumentStatus(doc.ActiveVersionID != nil, model.StatusPending, true)
			if err := s.docs.UpdateStatus(ctx, documentID, status); err != nil {
				return err
			}
		}

		v, err := s.versions.Create(ctx, &model.DocumentVersion{
			ID:            uuid.NewString(),
			DocumentID:    documentID,
			VersionNumber: number,
			Status:        model.StatusPending,
			FileURL:       objInfo.Key,
			OriginalName:  meta.OriginalName,
			FileSize:      objInfo.Size,
			MimeType:      meta.MimeType,
			CreatedBy:     userID,
			CreatedAt:     now,
		})
		if err != nil {
			return err
		}
		created = v
		return nil
	})
	if err != nil {
		// Rollback: delete the object from storage
		if delErr := s.store.Delete(context.WithoutCancel(ctx), objInfo.Key); delErr != nil {
			return nil, fmt.Errorf("db save failed: %w; rollback delete failed: %v", err, delErr)
		}
		return nil, fmt.Errorf("db save failed: %w", err)
	}

	s.publish(ctx, events.Event{
		Type:          events.TypeSubmitted,
		TenantID:      tenantID,
		DocumentID:    documentID,
		VersionID:     created.ID,
		VersionNumber: created.VersionNumber,
		ActorID:       userID,
	})
	return created, nil
}

func (s *documentService) Approve(ctx context.Context, tenantID, documentID, versionID, adminUserID string) (*model.DocumentVersion, error) {
	if documentID == "" || versionID == "" {
		return nil, ErrIDRequired
	}

	var approved *model.DocumentVersion
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.RequireAdmin(ctx, tenantID, adminUserID); err != nil {
			return err
		}
		doc, err := s.lockDocument(ctx, tenantID, documentID)
		if err != nil {
			return err
		}

		v, err := s.versions.MarkApproved(ctx, documentID, versionID, adminUserID, s.now())
		if errors.Is(err, sql.ErrNoRows) {
			return s.whyNotPending(ctx, documentID, versionID)
		}
		if err != nil {
			return err
		}

		if err := s.docs.SetActiveVersion(ctx, documentID, v.ID, model.StatusApproved); err != nil {
			return err
		}
		if prev := doc.ActiveVersionID; prev != nil && *prev != v.ID {
			if _, err := s.chunks.DeleteByVersion(ctx, *prev); err != nil {
				return fmt.Errorf("remove superseded chunks: %w", err)
			}
		}
		approved = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:          events.TypeApproved,
		TenantID:      tenantID,
		DocumentID:    documentID,
		VersionID:     approved.ID,
		VersionNumber: approved.VersionNumber,
		ActorID:       adminUserID,
	})
	return approved, nil
}

// LockPending serialises chunk writes with approve, reject and submit of
// the same document, across processes. It must run inside a transaction.
func (s *documentService) LockPending(ctx context.Context, tenantID, documentID, versionID string) error {
	if documentID == "" || versionID == "" {
		return ErrIDRequired
	}
	if _, err := s.lockDocument(ctx, tenantID, documentID); err != nil {
		return err
	}
	v, err := s.versions.FindByID(ctx, documentID, versionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrVersionNotFound
		}
		return err
	}
	if v.Status != model.StatusPending {
		return model.ErrVersionNotPending
	}
	return nil
}

// whyNotPending distinguishes a missing version from one that already left PENDING.
func (s *documentService) whyNotPending(ctx context.Context, documentID, versionID string) error {
	if _, err := s.versions.FindByID(ctx, documentID, versionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrVersionNotFound
		}
		return err
	}
	return model.ErrVersionNotPending
}

func (s *documentService) Reject(ctx context.Context, tenantID, documentID, reason, adminUserID string) (*model.DocumentVersion, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, model.ErrReasonRequired
	}
	if documentID == "" {
		return nil, ErrIDRequired
	}

	var rejected *model.DocumentVersion
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.RequireAdmin(ctx, tenantID, adminUserID); err != nil {
			return err
		}
		doc, err := s.lockDocument(ctx, tenantID, documentID)
		if err != nil {
			return err
		}

		v, err := s.versions.MarkRejected(ctx, documentID, adminUserID, reason, s.now())
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrNoPendingVersion
		}
		if err != nil {
			return err
		}

		// A failed ingestion may have left chunks behind.
		if _, err := s.chunks.DeleteByVersion(ctx, v.ID); err != nil {
			return fmt.Errorf("remove rejected chunks: %w", err)
		}
		status := model.DeriveDocumentStatus(doc.ActiveVersionID != nil, model.StatusRejected, false)
		if err := s.docs.UpdateStatus(ctx, documentID, status); err != nil {
			return err
		}
		rejected = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:          events.TypeRejected,
		TenantID:      tenantID,
		DocumentID:    documentID,
		VersionID:     rejected.ID,
		VersionNumber: rejected.VersionNumber,
		ActorID:       adminUserID,
		Reason:        reason,
	})
	return rejected, nil
}

func (s *documentService) GetActive(ctx context.Context, tenantID, documentID string) (*model.DocumentVersion, error) {
	doc, err := s.findDocument(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	if doc.ActiveVersionID == nil {
		return nil, model.ErrNoActiveVersion
	}
	v, err := s.versions.FindActive(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNoActiveVersion
		}
		return nil, err
	}
	if v.Status != model.StatusApproved {
		return nil, model.ErrNoActiveVersion
	}
	return v, nil
}

func (s *documentService) Get(ctx context.Context, tenantID, documentID string) (*model.Document, error) {
	doc, err := s.findDocument(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	tags, err := s.tags.DocumentTags(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document tags: %w", err)
	}
	doc.AccessTags = tags
	return doc, nil
}

func (s *documentService) GetVersion(ctx context.Context, tenantID, documentID, versionID string) (*model.DocumentVersion, error) {
	if versionID == "" {
		return nil, ErrIDRequired
	}
	if _, err := s.findDocument(ctx, tenantID, documentID); err != nil {
		return nil, err
	}
	v, err := s.versions.FindByID(ctx, documentID, versionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrVersionNotFound
		}
		return nil, err
	}
	return v, nil
}

func (s *documentService) ListVersions(ctx context.Context, tenantID, documentID string) ([]model.DocumentVersion, error) {
	if _, err := s.findDocument(ctx, tenantID, documentID); err != nil {
		return nil, err
	}
	return s.versions.ListByDocument(ctx, documentID)
}

// List returns paginated documents without exposing repository types.
func (s *documentService) List(ctx context.Context, tenantID string, f ListFilter) (*DocumentListResult, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, ErrBadStatus
	}
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	res, err := s.docs.List(ctx, tenantID, repository.DocumentFilter{
		Status:    f.Status,
		VisibleTo: f.VisibleTo,
		PageQuery: repository.PageQuery{Limit: f.Limit, Offset: f.Offset},
	})
	if err != nil {
		return nil, err
	}
	if len(res.Items) > 0 {
		ids := make([]string, len(res.Items))
		for i, d := range res.Items {
			ids[i] = d.ID
		}
		tags, err := s.tags.DocumentTagsBatch(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("load document tags: %w", err)
		}
		for i := range res.Items {
			res.Items[i].AccessTags = tags[res.Items[i].ID]
		}
	}
	return &DocumentListResult{Items: res.Items, Total: res.Total}, nil
}

// Delete removes the document rows first; stored files are removed after
// commit and a failure there only leaves an orphaned object behind.
func (s *documentService) Delete(ctx context.Context, tenantID, documentID, adminUserID string) error {
	if documentID == "" {
		return ErrIDRequired
	}
	if err := s.RequireAdmin(ctx, tenantID, adminUserID); err != nil {
		return err
	}

	var keys []string
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.lockDocument(ctx, tenantID, documentID); err != nil {
			return err
		}
		versions, err := s.versions.ListByDocument(ctx, documentID)
		if err != nil {
			return err
		}
		for _, v := range versions {
			keys = append(keys, v.FileURL)
		}
		if err := s.docs.Delete(ctx, tenantID, documentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return model.ErrDocumentNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Warn().
				Str("component", "service").
				Str("event", "object_delete_failed").
				Str("document_id", documentID).
				Str("key", key).
				Str("error_message", err.Error()).
				Msg("")
		}
	}

	s.publish(ctx, events.Event{
		Type:       events.TypeDeleted,
		TenantID:   tenantID,
		DocumentID: documentID,
		ActorID:    adminUserID,
	})
	return nil
}

func (s *documentService) SetTags(ctx context.Context, tenantID, documentID string, names []string, adminUserID string) ([]model.AccessTag, error) {
	if err := s.RequireAdmin(ctx, tenantID, adminUserID); err != nil {
		return nil, err
	}
	var out []model.AccessTag
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.lockDocument(ctx, tenantID, documentID); err != nil {
			return err
		}
		tags, err := s.replaceTags(ctx, tenantID, documentID, names)
		out = tags
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *documentService) replaceTags(ctx context.Context, tenantID, documentID string, names []string) ([]model.AccessTag, error) {
	names = NormalizeTagNames(names)
	var tags []model.AccessTag
	if len(names) > 0 {
		var err error
		tags, err = s.tags.Ensure(ctx, tenantID, names)
		if err != nil {
			return nil, fmt.Errorf("ensure tags: %w", err)
		}
	}
	ids := make([]string, len(tags))
	for i, t := range tags {
		ids[i] = t.ID
	}
	if err := s.tags.SetDocumentTags(ctx, documentID, ids); err != nil {
		return nil, fmt.Errorf("set document tags: %w", err)
	}
	return tags, nil
}

func (s *documentService) DownloadURL(ctx context.Context, v *model.DocumentVersion) (string, error) {
	if v == nil || v.FileURL == "" {
		return "", ErrIDRequired
	}
	return s.store.PresignGet(ctx, v.FileURL, downloadExpiry)
}

func (s *documentService) findDocument(ctx context.Context, tenantID, documentID string) (*model.Document, error) {
	if documentID == "" {
		return nil, ErrIDRequired
	}
	doc, err := s.docs.FindByID(ctx, tenantID, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrDocumentNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (s *documentService) lockDocument(ctx context.Context, tenantID, documentID string) (*model.Document, error) {
	doc, err := s.docs.FindForUpdate(ctx, tenantID, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrDocumentNotFound
		}
		return nil, err
	}
	return doc, nil
}

// publish sends e after commit, bounded by publishTimeout. Failures are
// logged; the state change stands.
func (s *documentService) publish(ctx context.Context, e events.Event) {
	e.OccurredAt = s.now()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn().
			Str("component", "service").
			Str("event", "lifecycle_event_dropped").
			Str("type", e.Type).
			Str("document_id", e.DocumentID).
			Str("error_message", err.Error()).
			Msg("")
	}
}

// NormalizeTagNames trims names and drops empty and duplicate entries,
// keeping first-seen order.
func NormalizeTagNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
