package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"kbapi/internal/model"
)

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) CanAccess(ctx context.Context, userID, tenantID, documentID string) (bool, error) {
	args := m.Called(ctx, userID, tenantID, documentID)
	return args.Bool(0), args.Error(1)
}

func (m *MockResolver) Filter(ctx context.Context, userID, tenantID string, docs []model.Document) ([]model.Document, error) {
	args := m.Called(ctx, userID, tenantID, docs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Document), args.Error(1)
}

func (m *MockResolver) Grant(ctx context.Context, tenantID, userID string, names []string) error {
	return m.Called(ctx, tenantID, userID, names).Error(0)
}

func (m *MockResolver) Revoke(ctx context.Context, tenantID, userID string, names []string) error {
	return m.Called(ctx, tenantID, userID, names).Error(0)
}
