package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"kbapi/internal/ingest"
)

type MockOrchestrator struct {
	mock.Mock
}

func (m *MockOrchestrator) Ingest(ctx context.Context, tenantID, documentID, versionID string) (int, error) {
	args := m.Called(ctx, tenantID, documentID, versionID)
	return args.Int(0), args.Error(1)
}

func (m *MockOrchestrator) Approve(ctx context.Context, tenantID, documentID, versionID, adminUserID string) (*ingest.Result, error) {
	args := m.Called(ctx, tenantID, documentID, versionID, adminUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ingest.Result), args.Error(1)
}

func (m *MockOrchestrator) ApproveAsync(ctx context.Context, tenantID, documentID, versionID, adminUserID string) (ingest.Job, error) {
	args := m.Called(ctx, tenantID, documentID, versionID, adminUserID)
	return args.Get(0).(ingest.Job), args.Error(1)
}

func (m *MockOrchestrator) Job(versionID string) (ingest.Job, bool) {
	args := m.Called(versionID)
	return args.Get(0).(ingest.Job), args.Bool(1)
}
