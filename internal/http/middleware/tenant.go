package middleware

import (
	"database/sql"
	"errors"
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"kbapi/internal/model"
	"kbapi/internal/repository"
)

const (
	// UserIDHeader carries the authenticated user id set by the auth gateway.
	UserIDHeader = "X-User-ID"

	tenantLocalKey = "tenant"
	memberLocalKey = "member"
)

// Guard messages. They start with "not permitted" like every authorization
// failure the API reports.
const (
	msgNoIdentity   = "missing or invalid user identity"
	msgNotMember    = "not permitted: no membership in tenant"
	msgAdminOnly    = "not permitted: admin role required"
	msgTenantNeeded = "not permitted: tenant is required"
)

// TenantGuard resolves the tenant of the request and the caller's membership
// in it. The tenant subdomain comes from the :tenant route parameter, or the
// first label of the host name on routes without one.
//
// Unknown tenants and missing memberships both answer 403, so a caller can't
// tell which tenants exist. Handlers read the resolved values through
// CurrentTenant and CurrentMember and never trust ids from the request body.
func TenantGuard(tenants repository.TenantRepository, members repository.MemberRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get(UserIDHeader)
		if _, err := uuid.Parse(userID); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, msgNoIdentity)
		}

		subdomain := c.Params("tenant")
		if subdomain == "" {
			subdomain = hostSubdomain(c.Hostname())
		}
		if subdomain == "" {
			return fiber.NewError(fiber.StatusForbidden, msgTenantNeeded)
		}

		ctx := c.UserContext()
		tenant, err := tenants.FindBySubdomain(ctx, strings.ToLower(subdomain))
		if errors.Is(err, sql.ErrNoRows) {
			return fiber.NewError(fiber.StatusForbidden, msgNotMember)
		}
		if err != nil {
			return err
		}

		member, err := members.Find(ctx, tenant.ID, userID)
		if errors.Is(err, sql.ErrNoRows) {
			return fiber.NewError(fiber.StatusForbidden, msgNotMember)
		}
		if err != nil {
			return err
		}

		SetTenant(c, tenant, member)
		return c.Next()
	}
}

// RequireAdmin rejects callers whose membership is not ADMIN. It must run
// after TenantGuard.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !CurrentMember(c).IsAdmin() {
			return fiber.NewError(fiber.StatusForbidden, msgAdminOnly)
		}
		return c.Next()
	}
}

// SetTenant stores the request's tenant and the caller's membership.
func SetTenant(c *fiber.Ctx, tenant *model.Tenant, member *model.TenantMember) {
	c.Locals(tenantLocalKey, tenant)
	c.Locals(memberLocalKey, member)
}

// CurrentTenant returns the tenant resolved by TenantGuard.
func CurrentTenant(c *fiber.Ctx) *model.Tenant {
	t, _ := c.Locals(tenantLocalKey).(*model.Tenant)
	return t
}

// CurrentMember returns the caller's membership resolved by TenantGuard.
func CurrentMember(c *fiber.Ctx) *model.TenantMember {
	m, _ := c.Locals(memberLocalKey).(*model.TenantMember)
	return m
}

// hostSubdomain returns the first label of host ("acme" for
// "acme.kb.example.com:8080"); bare hosts such as localhost and IP
// addresses have none.
func hostSubdomain(host string) string {
	host, _, _ = strings.Cut(host, ":")
	if net.ParseIP(host) != nil {
		return ""
	}
	label, rest, ok := strings.Cut(host, ".")
	if !ok || rest == "" {
		return ""
	}
	return label
}
