package model

import "time"

// Role is the membership role of a user inside one tenant.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

// Tenant is the isolation boundary for all documents and memberships.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Subdomain string    `json:"subdomain"`
	CreatedAt time.Time `json:"created_at"`
}

// User is a global identity that may belong to several tenants.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// TenantMember binds a user to a tenant with a role.
type TenantMember struct {
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// IsAdmin reports whether the membership carries the ADMIN role.
func (m *TenantMember) IsAdmin() bool {
	return m != nil && m.Role == RoleAdmin
}
