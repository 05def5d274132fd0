package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"kbapi/internal/model"
	"kbapi/internal/service"
)

type MockDocumentService struct {
	mock.Mock
}

var _ service.VersionApprover = (*MockDocumentService)(nil)

func (m *MockDocumentService) Submit(ctx context.Context, tenantID, userID string, r io.Reader, meta model.SubmitMetadata) (*model.DocumentVersion, error) {
	args := m.Called(ctx, tenantID, userID, r, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DocumentVersion), args.Error(1)
}

func (m *MockDocumentService) Approve(ctx context.Context, tenantID, documentID, versionID, adminUserID string) (*model.DocumentVersion, error) {
	args := m.Called(ctx, tenantID, documentID, versionID, adminUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DocumentVersion), args.Error(1)
}

func (m *MockDocumentService) Reject(ctx context.Context, tenantID, documentID, reason, adminUserID string) (*model.DocumentVersion, error) {
	args := m.Called(ctx, tenantID, documentID, reason, adminUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DocumentVersion), args.Error(1)
}

func (m *MockDocumentService) GetActive(ctx context.Context, tenantID, documentID string) (*model.DocumentVersion, error) {
	args := m.Called(ctx, tenantID, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DocumentVersion), args.Error(1)
}

func (m *MockDocumentService) Get(ctx context.Context, tenantID, documentID string) (*model.Document, error) {
	args := m.Called(ctx, tenantID, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) GetVersion(ctx context.Context, tenantID, documentID, versionID string) (*model.DocumentVersion, error) {
	args := m.Called(ctx, tenantID, documentID, versionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DocumentVersion), args.Error(1)
}

func (m *MockDocumentService) ListVersions(ctx context.Context, tenantID, documentID string) ([]model.DocumentVersion, error) {
	args := m.Called(ctx, tenantID, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.DocumentVersion), args.Error(1)
}

func (m *MockDocumentService) List(ctx context.Context, tenantID string, f service.ListFilter) (*service.DocumentListResult, error) {
	args := m.Called(ctx, tenantID, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DocumentListResult), args.Error(1)
}

func (m *MockDocumentService) Delete(ctx context.Context, tenantID, documentID, adminUserID string) error {
	args := m.Called(ctx, tenantID, documentID, adminUserID)
	return args.Error(0)
}

func (m *MockDocumentService) SetTags(ctx context.Context, tenantID, documentID string, names []string, adminUserID string) ([]model.AccessTag, error) {
	args := m.Called(ctx, tenantID, documentID, names, adminUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AccessTag), args.Error(1)
}

func (m *MockDocumentService) DownloadURL(ctx context.Context, v *model.DocumentVersion) (string, error) {
	args := m.Called(ctx, v)
	return args.String(0), args.Error(1)
}

func (m *MockDocumentService) RequireAdmin(ctx context.Context, tenantID, userID string) error {
	return m.Called(ctx, tenantID, userID).Error(0)
}

func (m *MockDocumentService) LockPending(ctx context.Context, tenantID, documentID, versionID string) error {
	return m.Called(ctx, tenantID, documentID, versionID).Error(0)
}
