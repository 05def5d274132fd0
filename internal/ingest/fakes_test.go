package ingest

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"kbapi/internal/embed"
	"kbapi/internal/model"
	"kbapi/internal/storage"
)

type fakeStore struct {
	mu           sync.Mutex
	admins       map[string]bool
	docs         map[string]*model.Document
	versions     map[string]*model.DocumentVersion
	approveCalls int
	approveErr   error
	trail        []string
}

func (s *fakeStore) note(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trail = append(s.trail, step)
}

func (s *fakeStore) steps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.trail...)
}

func (s *fakeStore) setStatus(versionID string, status model.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[versionID].Status = status
}

func (s *fakeStore) LockPending(ctx context.Context, tenantID, documentID, versionID string) error {
	s.note("lock")
	v, err := s.GetVersion(ctx, tenantID, documentID, versionID)
	if err != nil {
		return err
	}
	if v.Status != model.StatusPending {
		return model.ErrVersionNotPending
	}
	return nil
}

func (s *fakeStore) RequireAdmin(ctx context.Context, tenantID, userID string) error {
	if !s.admins[userID] {
		return model.ErrAdminRequired
	}
	return nil
}

func (s *fakeStore) Get(ctx context.Context, tenantID, documentID string) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[documentID]
	if !ok || d.TenantID != tenantID {
		return nil, model.ErrDocumentNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *fakeStore) GetVersion(ctx context.Context, tenantID, documentID, versionID string) (*model.DocumentVersion, error) {
	if _, err := s.Get(ctx, tenantID, documentID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[versionID]
	if !ok || v.DocumentID != documentID {
		return nil, model.ErrVersionNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *fakeStore) Approve(ctx context.Context, tenantID, documentID, versionID, adminUserID string) (*model.DocumentVersion, error) {
	s.note("approve")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approveCalls++
	if s.approveErr != nil {
		return nil, s.approveErr
	}
	v := s.versions[versionID]
	if v.Status != model.StatusPending {
		return nil, model.ErrVersionNotPending
	}
	v.Status = model.StatusApproved
	v.ApprovedBy = &adminUserID
	id := v.ID
	s.docs[documentID].ActiveVersionID = &id
	s.docs[documentID].Status = model.StatusApproved
	cp := *v
	return &cp, nil
}

func (s *fakeStore) status(versionID string) model.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions[versionID].Status
}

type fakeChunks struct {
	mu         sync.Mutex
	store      *fakeStore
	byVersion  map[string][]model.Chunk
	replaceErr error
	replaces   int
}

func (c *fakeChunks) Replace(ctx context.Context, documentID, versionID string, chunks []model.Chunk) error {
	c.store.note("replace")
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.replaceErr != nil {
		return c.replaceErr
	}
	c.replaces++
	c.byVersion[versionID] = append([]model.Chunk(nil), chunks...)
	return nil
}

func (c *fakeChunks) DeleteByVersion(ctx context.Context, versionID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.byVersion[versionID])
	delete(c.byVersion, versionID)
	return int64(n), nil
}

func (c *fakeChunks) DeleteUnapproved(ctx context.Context, versionID string) (int64, error) {
	if c.store.status(versionID) == model.StatusApproved {
		return 0, nil
	}
	return c.DeleteByVersion(ctx, versionID)
}

func (c *fakeChunks) CountByVersion(ctx context.Context, versionID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byVersion[versionID]), nil
}

func (c *fakeChunks) count(versionID string) int {
	n, _ := c.CountByVersion(context.Background(), versionID)
	return n
}

type funcEmbedder func(ctx context.Context, text string) ([]embed.Span, error)

func (f funcEmbedder) ChunkAndEmbed(ctx context.Context, text string) ([]embed.Span, error) {
	return f(ctx, text)
}

type fixture struct {
	store  *fakeStore
	chunks *fakeChunks
	files  *storage.Memory
}

const (
	tenantID = "t1"
	docID    = "d1"
	verID    = "v1"
	adminID  = "admin"
)

// newFixture seeds one document with a PENDING version whose file holds body.
func newFixture(t *testing.T, mimeType, body string) *fixture {
	t.Helper()
	store := &fakeStore{
		admins: map[string]bool{adminID: true},
		docs: map[string]*model.Document{
			docID: {ID: docID, TenantID: tenantID, Name: "Handbook", Description: "Company handbook", Status: model.StatusPending},
		},
		versions: map[string]*model.DocumentVersion{
			verID: {ID: verID, DocumentID: docID, VersionNumber: 1, Status: model.StatusPending, FileURL: "files/v1", MimeType: mimeType},
		},
	}
	files := storage.NewMemory()
	_, err := files.Put(context.Background(), "files/v1", strings.NewReader(body), storage.PutObjectOptions{Size: int64(len(body))})
	require.NoError(t, err)

	return &fixture{
		store:  store,
		chunks: &fakeChunks{store: store, byVersion: make(map[string][]model.Chunk)},
		files:  files,
	}
}

func (f *fixture) orchestrator(t *testing.T, embedder ChunkEmbedder, opts ...Option) *Orchestrator {
	t.Helper()
	if embedder == nil {
		embedder = embed.NewPipeline(embed.NewHash(8), 200, 20, 16)
	}
	o, err := New(f.store, f.chunks, f.files, embedder, opts...)
	require.NoError(t, err)
	t.Cleanup(o.Release)
	return o
}
