package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"kbapi/internal/model"
)

type MockTenantRepository struct {
	mock.Mock
}

func (m *MockTenantRepository) FindBySubdomain(ctx context.Context, subdomain string) (*model.Tenant, error) {
	args := m.Called(ctx, subdomain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Tenant), args.Error(1)
}

type MockMemberRepository struct {
	mock.Mock
}

func (m *MockMemberRepository) Find(ctx context.Context, tenantID, userID string) (*model.TenantMember, error) {
	args := m.Called(ctx, tenantID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TenantMember), args.Error(1)
}

type MockAccessTagRepository struct {
	mock.Mock
}

func (m *MockAccessTagRepository) Ensure(ctx context.Context, tenantID string, names []string) ([]model.AccessTag, error) {
	args := m.Called(ctx, tenantID, names)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AccessTag), args.Error(1)
}

func (m *MockAccessTagRepository) SetDocumentTags(ctx context.Context, documentID string, tagIDs []string) error {
	return m.Called(ctx, documentID, tagIDs).Error(0)
}

func (m *MockAccessTagRepository) DocumentTags(ctx context.Context, documentID string) ([]model.AccessTag, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AccessTag), args.Error(1)
}

func (m *MockAccessTagRepository) DocumentTagsBatch(ctx context.Context, documentIDs []string) (map[string][]model.AccessTag, error) {
	args := m.Called(ctx, documentIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string][]model.AccessTag), args.Error(1)
}

func (m *MockAccessTagRepository) MemberTags(ctx context.Context, tenantID, userID string) ([]model.AccessTag, error) {
	args := m.Called(ctx, tenantID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AccessTag), args.Error(1)
}

func (m *MockAccessTagRepository) Grant(ctx context.Context, tenantID, userID string, tagIDs []string) error {
	return m.Called(ctx, tenantID, userID, tagIDs).Error(0)
}

func (m *MockAccessTagRepository) Revoke(ctx context.Context, tenantID, userID string, tagIDs []string) error {
	return m.Called(ctx, tenantID, userID, tagIDs).Error(0)
}
