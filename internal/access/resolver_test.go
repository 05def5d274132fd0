package access

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"kbapi/internal/model"
	"kbapi/internal/repository/mocks"
)

var (
	legal = model.AccessTag{ID: "tag-legal", TenantID: "t1", Name: "Legal"}
	hr    = model.AccessTag{ID: "tag-hr", TenantID: "t1", Name: "HR"}
)

func newResolver() (*Resolver, *mocks.MockMemberRepository, *mocks.MockDocumentRepository, *mocks.MockAccessTagRepository) {
	members := new(mocks.MockMemberRepository)
	docs := new(mocks.MockDocumentRepository)
	tags := new(mocks.MockAccessTagRepository)
	return NewResolver(members, docs, tags), members, docs, tags
}

func member(role model.Role) *model.TenantMember {
	return &model.TenantMember{UserID: "u1", TenantID: "t1", Role: role}
}

func TestResolver_CanAccess(t *testing.T) {
	ctx := context.Background()
	doc := &model.Document{ID: "d1", TenantID: "t1"}

	tests := []struct {
		name    string
		setup   func(m *mocks.MockMemberRepository, d *mocks.MockDocumentRepository, tg *mocks.MockAccessTagRepository)
		want    bool
		wantErr error
	}{
		{
			name: "no membership fails closed",
			setup: func(m *mocks.MockMemberRepository, _ *mocks.MockDocumentRepository, _ *mocks.MockAccessTagRepository) {
				m.On("Find", ctx, "t1", "u1").Return(nil, sql.ErrNoRows)
			},
			want: false,
		},
		{
			name: "admin bypasses tags",
			setup: func(m *mocks.MockMemberRepository, _ *mocks.MockDocumentRepository, _ *mocks.MockAccessTagRepository) {
				m.On("Find", ctx, "t1", "u1").Return(member(model.RoleAdmin), nil)
			},
			want: true,
		},
		{
			name: "untagged document is open to members",
			setup: func(m *mocks.MockMemberRepository, d *mocks.MockDocumentRepository, tg *mocks.MockAccessTagRepository) {
				m.On("Find", ctx, "t1", "u1").Return(member(model.RoleMember), nil)
				d.On("FindByID", ctx, "t1", "d1").Return(doc, nil)
				tg.On("DocumentTags", ctx, "d1").Return([]model.AccessTag{}, nil)
			},
			want: true,
		},
		{
			name: "member without overlapping tag is denied",
			setup: func(m *mocks.MockMemberRepository, d *mocks.MockDocumentRepository, tg *mocks.MockAccessTagRepository) {
				m.On("Find", ctx, "t1", "u1").Return(member(model.RoleMember), nil)
				d.On("FindByID", ctx, "t1", "d1").Return(doc, nil)
				tg.On("DocumentTags", ctx, "d1").Return([]model.AccessTag{legal}, nil)
				tg.On("MemberTags", ctx, "t1", "u1").Return([]model.AccessTag{hr}, nil)
			},
			want: false,
		},
		{
			name: "member with overlapping tag is allowed",
			setup: func(m *mocks.MockMemberRepository, d *mocks.MockDocumentRepository, tg *mocks.MockAccessTagRepository) {
				m.On("Find", ctx, "t1", "u1").Return(member(model.RoleMember), nil)
				d.On("FindByID", ctx, "t1", "d1").Return(doc, nil)
				tg.On("DocumentTags", ctx, "d1").Return([]model.AccessTag{legal, hr}, nil)
				tg.On("MemberTags", ctx, "t1", "u1").Return([]model.AccessTag{hr}, nil)
			},
			want: true,
		},
		{
			name: "document of another tenant",
			setup: func(m *mocks.MockMemberRepository, d *mocks.MockDocumentRepository, _ *mocks.MockAccessTagRepository) {
				m.On("Find", ctx, "t1", "u1").Return(member(model.RoleMember), nil)
				d.On("FindByID", ctx, "t1", "d1").Return(nil, sql.ErrNoRows)
			},
			want:    false,
			wantErr: model.ErrNotFound,
		},
		{
			name: "membership lookup error",
			setup: func(m *mocks.MockMemberRepository, _ *mocks.MockDocumentRepository, _ *mocks.MockAccessTagRepository) {
				m.On("Find", ctx, "t1", "u1").Return(nil, errors.New("db down"))
			},
			want:    false,
			wantErr: errors.New("resolve membership: db down"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, m, d, tg := newResolver()
			tt.setup(m, d, tg)

			got, err := r.CanAccess(ctx, "u1", "t1", "d1")

			assert.Equal(t, tt.want, got)
			switch {
			case tt.wantErr == nil:
				assert.NoError(t, err)
			case errors.Is(tt.wantErr, model.ErrNotFound):
				assert.ErrorIs(t, err, model.ErrNotFound)
			default:
				assert.EqualError(t, err, tt.wantErr.Error())
			}
			m.AssertExpectations(t)
			d.AssertExpectations(t)
			tg.AssertExpectations(t)
		})
	}
}

func TestResolver_GrantUnlocksTaggedDocument(t *testing.T) {
	ctx := context.Background()
	r, m, d, tg := newResolver()

	m.On("Find", ctx, "t1", "u1").Return(member(model.RoleMember), nil)
	d.On("FindByID", ctx, "t1", "d1").Return(&model.Document{ID: "d1", TenantID: "t1"}, nil)
	tg.On("DocumentTags", ctx, "d1").Return([]model.AccessTag{legal}, nil)
	tg.On("MemberTags", ctx, "t1", "u1").Return([]model.AccessTag{hr}, nil).Once()
	tg.On("Ensure", ctx, "t1", []string{"Legal"}).Return([]model.AccessTag{legal}, nil)
	tg.On("Grant", ctx, "t1", "u1", []string{"tag-legal"}).Return(nil)
	tg.On("MemberTags", ctx, "t1", "u1").Return([]model.AccessTag{hr, legal}, nil).Once()

	ok, err := r.CanAccess(ctx, "u1", "t1", "d1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Grant(ctx, "t1", "u1", []string{"Legal"}))

	ok, err = r.CanAccess(ctx, "u1", "t1", "d1")
	require.NoError(t, err)
	assert.True(t, ok)

	tg.AssertExpectations(t)
}

func TestResolver_Filter(t *testing.T) {
	ctx := context.Background()
	docs := []model.Document{
		{ID: "open", TenantID: "t1"},
		{ID: "legal", TenantID: "t1"},
		{ID: "hr", TenantID: "t1"},
		{ID: "foreign", TenantID: "t2"},
	}
	batch := map[string][]model.AccessTag{
		"legal": {legal},
		"hr":    {hr},
	}
	ids := []string{"open", "legal", "hr", "foreign"}

	t.Run("member sees untagged and granted", func(t *testing.T) {
		r, m, _, tg := newResolver()
		m.On("Find", ctx, "t1", "u1").Return(member(model.RoleMember), nil)
		tg.On("DocumentTagsBatch", ctx, ids).Return(batch, nil)
		tg.On("MemberTags", ctx, "t1", "u1").Return([]model.AccessTag{hr}, nil)

		got, err := r.Filter(ctx, "u1", "t1", docs)

		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "open", got[0].ID)
		assert.Equal(t, "hr", got[1].ID)
		assert.Equal(t, []model.AccessTag{hr}, got[1].AccessTags)
	})

	t.Run("admin sees every tenant document", func(t *testing.T) {
		r, m, _, tg := newResolver()
		m.On("Find", ctx, "t1", "u1").Return(member(model.RoleAdmin), nil)
		tg.On("DocumentTagsBatch", ctx, ids).Return(batch, nil)

		got, err := r.Filter(ctx, "u1", "t1", docs)

		require.NoError(t, err)
		assert.Len(t, got, 3)
		tg.AssertNotCalled(t, "MemberTags", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("non member gets nothing", func(t *testing.T) {
		r, m, _, _ := newResolver()
		m.On("Find", ctx, "t1", "u1").Return(nil, sql.ErrNoRows)

		got, err := r.Filter(ctx, "u1", "t1", docs)

		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestResolver_Revoke(t *testing.T) {
	ctx := context.Background()

	t.Run("revokes only granted names", func(t *testing.T) {
		r, m, _, tg := newResolver()
		m.On("Find", ctx, "t1", "u1").Return(member(model.RoleMember), nil)
		tg.On("MemberTags", ctx, "t1", "u1").Return([]model.AccessTag{hr, legal}, nil)
		tg.On("Revoke", ctx, "t1", "u1", []string{"tag-legal"}).Return(nil)

		require.NoError(t, r.Revoke(ctx, "t1", "u1", []string{"Legal", "Finance"}))
		tg.AssertExpectations(t)
	})

	t.Run("unknown member", func(t *testing.T) {
		r, m, _, _ := newResolver()
		m.On("Find", ctx, "t1", "u1").Return(nil, sql.ErrNoRows)

		err := r.Revoke(ctx, "t1", "u1", []string{"Legal"})
		assert.ErrorIs(t, err, model.ErrMemberNotFound)
	})
}
