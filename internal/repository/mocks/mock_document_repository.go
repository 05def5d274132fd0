package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"kbapi/internal/model"
	"kbapi/internal/repository"
)

type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	args := m.Called(ctx, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentRepository) FindByID(ctx context.Context, tenantID, id string) (*model.Document, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentRepository) FindForUpdate(ctx context.Context, tenantID, id string) (*model.Document, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentRepository) List(ctx context.Context, tenantID string, f repository.DocumentFilter) (*repository.PageResult[model.Document], error) {
	args := m.Called(ctx, tenantID, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.Document]), args.Error(1)
}

func (m *MockDocumentRepository) UpdateStatus(ctx context.Context, id string, status model.Status) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *MockDocumentRepository) SetActiveVersion(ctx context.Context, id, versionID string, status model.Status) error {
	return m.Called(ctx, id, versionID, status).Error(0)
}

func (m *MockDocumentRepository) Delete(ctx context.Context, tenantID, id string) error {
	return m.Called(ctx, tenantID, id).Error(0)
}

type MockVersionRepository struct {
	mock.Mock
}

func (m *MockVersionRepository) Create(ctx context.Context, v *model.DocumentVersion) (*model.DocumentVersion, error) {
	args := m.Called(ctx, v)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	if f, ok := args.Get(0).(func(context.Context, *model.DocumentVersion) *model.DocumentVersion); ok {
		return f(ctx, v), args.Error(1)
	}
	return args.Get(0).(*model.DocumentVersion), args.Error(1)
}

func (m *MockVersionRepository) FindByID(ctx context.Context, documentID, id string) (*model.DocumentVersion, error) {
	args := m.Called(ctx, documentID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DocumentVersion), args.Error(1)
}

func (m *MockVersionRepository) ListByDocument(ctx context.Context, documentID string) ([]model.DocumentVersion, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.DocumentVersion), args.Error(1)
}

func (m *MockVersionRepository) HasPending(ctx context.Context, documentID string) (bool, error) {
	args := m.Called(ctx, documentID)
	return args.Bool(0), args.Error(1)
}

func (m *MockVersionRepository) MaxVersionNumber(ctx context.Context, documentID string) (int, error) {
	args := m.Called(ctx, documentID)
	return args.Int(0), args.Error(1)
}

func (m *MockVersionRepository) MarkApproved(ctx context.Context, documentID, id, approvedBy string, at time.Time) (*model.DocumentVersion, error) {
	args := m.Called(ctx, documentID, id, approvedBy, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DocumentVersion), args.Error(1)
}

func (m *MockVersionRepository) MarkRejected(ctx context.Context, documentID, rejectedBy, reason string, at time.Time) (*model.DocumentVersion, error) {
	args := m.Called(ctx, documentID, rejectedBy, reason, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DocumentVersion), args.Error(1)
}

func (m *MockVersionRepository) FindActive(ctx context.Context, documentID string) (*model.DocumentVersion, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DocumentVersion), args.Error(1)
}

type MockChunkRepository struct {
	mock.Mock
}

func (m *MockChunkRepository) Replace(ctx context.Context, documentID, versionID string, chunks []model.Chunk) error {
	return m.Called(ctx, documentID, versionID, chunks).Error(0)
}

func (m *MockChunkRepository) DeleteByVersion(ctx context.Context, versionID string) (int64, error) {
	args := m.Called(ctx, versionID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockChunkRepository) DeleteUnapproved(ctx context.Context, versionID string) (int64, error) {
	args := m.Called(ctx, versionID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockChunkRepository) CountByVersion(ctx context.Context, versionID string) (int, error) {
	args := m.Called(ctx, versionID)
	return args.Int(0), args.Error(1)
}

// TxManager runs fn directly on the caller's context.
type TxManager struct{}

func (TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
