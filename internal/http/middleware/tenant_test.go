package middleware

import (
	"database/sql"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"kbapi/internal/model"
	"kbapi/internal/repository/mocks"
)

func newGuardedApp(tenants *mocks.MockTenantRepository, members *mocks.MockMemberRepository) *fiber.App {
	app := fiber.New()

	scoped := app.Group("/tenants/:tenant", TenantGuard(tenants, members))
	scoped.Get("/whoami", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"tenant": CurrentTenant(c).ID,
			"role":   CurrentMember(c).Role,
		})
	})
	scoped.Post("/admin", RequireAdmin(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Get("/whoami", TenantGuard(tenants, members), func(c *fiber.Ctx) error {
		return c.SendString(CurrentTenant(c).Subdomain)
	})
	return app
}

func TestTenantGuard(t *testing.T) {
	userID := uuid.NewString()
	acme := &model.Tenant{ID: "t-acme", Subdomain: "acme"}

	t.Run("member passes with tenant and membership in locals", func(t *testing.T) {
		tenants, members := new(mocks.MockTenantRepository), new(mocks.MockMemberRepository)
		tenants.On("FindBySubdomain", mock.Anything, "acme").Return(acme, nil).Once()
		members.On("Find", mock.Anything, "t-acme", userID).
			Return(&model.TenantMember{TenantID: "t-acme", UserID: userID, Role: model.RoleMember}, nil).Once()

		req := httptest.NewRequest("GET", "/tenants/acme/whoami", nil)
		req.Header.Set(UserIDHeader, userID)
		resp, _ := newGuardedApp(tenants, members).Test(req)

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		tenants.AssertExpectations(t)
		members.AssertExpectations(t)
	})

	t.Run("missing identity", func(t *testing.T) {
		tenants, members := new(mocks.MockTenantRepository), new(mocks.MockMemberRepository)

		resp, _ := newGuardedApp(tenants, members).Test(httptest.NewRequest("GET", "/tenants/acme/whoami", nil))

		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		tenants.AssertNotCalled(t, "FindBySubdomain", mock.Anything, mock.Anything)
	})

	t.Run("malformed identity", func(t *testing.T) {
		tenants, members := new(mocks.MockTenantRepository), new(mocks.MockMemberRepository)

		req := httptest.NewRequest("GET", "/tenants/acme/whoami", nil)
		req.Header.Set(UserIDHeader, "bob")
		resp, _ := newGuardedApp(tenants, members).Test(req)

		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown tenant is forbidden", func(t *testing.T) {
		tenants, members := new(mocks.MockTenantRepository), new(mocks.MockMemberRepository)
		tenants.On("FindBySubdomain", mock.Anything, "ghost").Return(nil, sql.ErrNoRows).Once()

		req := httptest.NewRequest("GET", "/tenants/ghost/whoami", nil)
		req.Header.Set(UserIDHeader, userID)
		resp, _ := newGuardedApp(tenants, members).Test(req)

		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
		members.AssertNotCalled(t, "Find", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("member of another tenant is forbidden", func(t *testing.T) {
		tenants, members := new(mocks.MockTenantRepository), new(mocks.MockMemberRepository)
		tenants.On("FindBySubdomain", mock.Anything, "acme").Return(acme, nil).Once()
		members.On("Find", mock.Anything, "t-acme", userID).Return(nil, sql.ErrNoRows).Once()

		req := httptest.NewRequest("GET", "/tenants/acme/whoami", nil)
		req.Header.Set(UserIDHeader, userID)
		resp, _ := newGuardedApp(tenants, members).Test(req)

		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})

	t.Run("lookup failure is an internal error", func(t *testing.T) {
		tenants, members := new(mocks.MockTenantRepository), new(mocks.MockMemberRepository)
		tenants.On("FindBySubdomain", mock.Anything, "acme").Return(nil, errors.New("conn reset")).Once()

		req := httptest.NewRequest("GET", "/tenants/acme/whoami", nil)
		req.Header.Set(UserIDHeader, userID)
		resp, _ := newGuardedApp(tenants, members).Test(req)

		assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	})

	t.Run("tenant from host name", func(t *testing.T) {
		tenants, members := new(mocks.MockTenantRepository), new(mocks.MockMemberRepository)
		tenants.On("FindBySubdomain", mock.Anything, "acme").Return(acme, nil).Once()
		members.On("Find", mock.Anything, "t-acme", userID).
			Return(&model.TenantMember{TenantID: "t-acme", UserID: userID, Role: model.RoleMember}, nil).Once()

		req := httptest.NewRequest("GET", "http://acme.kb.example.com/whoami", nil)
		req.Header.Set(UserIDHeader, userID)
		resp, _ := newGuardedApp(tenants, members).Test(req)

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("bare host has no tenant", func(t *testing.T) {
		tenants, members := new(mocks.MockTenantRepository), new(mocks.MockMemberRepository)

		req := httptest.NewRequest("GET", "http://localhost/whoami", nil)
		req.Header.Set(UserIDHeader, userID)
		resp, _ := newGuardedApp(tenants, members).Test(req)

		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})
}

func TestRequireAdmin(t *testing.T) {
	userID := uuid.NewString()
	acme := &model.Tenant{ID: "t-acme", Subdomain: "acme"}

	tests := []struct {
		name string
		role model.Role
		want int
	}{
		{name: "admin", role: model.RoleAdmin, want: fiber.StatusNoContent},
		{name: "member", role: model.RoleMember, want: fiber.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tenants, members := new(mocks.MockTenantRepository), new(mocks.MockMemberRepository)
			tenants.On("FindBySubdomain", mock.Anything, "acme").Return(acme, nil)
			members.On("Find", mock.Anything, "t-acme", userID).
				Return(&model.TenantMember{TenantID: "t-acme", UserID: userID, Role: tt.role}, nil)

			req := httptest.NewRequest("POST", "/tenants/acme/admin", nil)
			req.Header.Set(UserIDHeader, userID)
			resp, _ := newGuardedApp(tenants, members).Test(req)

			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestHostSubdomain(t *testing.T) {
	assert.Equal(t, "acme", hostSubdomain("acme.kb.example.com"))
	assert.Equal(t, "acme", hostSubdomain("acme.localhost:3000"))
	assert.Equal(t, "", hostSubdomain("localhost:3000"))
	assert.Equal(t, "", hostSubdomain("127.0.0.1:3000"))
	assert.Equal(t, "", hostSubdomain(""))
}
