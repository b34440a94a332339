package auth

import "tranche-vault/internal/access"

// Role represents a user role.
type Role string

const (
	RoleHolder   Role = "holder"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// NormalizeRole validates and normalizes a role string.
func NormalizeRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleHolder, RoleOperator, RoleAdmin:
		return Role(value), true
	default:
		return "", false
	}
}

// RoleAtLeast returns true when role satisfies required role.
func RoleAtLeast(role Role, required Role) bool {
	return roleRank(role) >= roleRank(required)
}

func roleRank(role Role) int {
	switch role {
	case RoleHolder:
		return 1
	case RoleOperator:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

// Capabilities returns the capabilities a role carries by default.
func (r Role) Capabilities() []access.Capability {
	switch r {
	case RoleOperator:
		return []access.Capability{access.CapVaultOperator, access.CapNavUpdater}
	case RoleAdmin:
		return []access.Capability{
			access.CapVaultOperator,
			access.CapVaultAdmin,
			access.CapNavUpdater,
			access.CapNavAdmin,
			access.CapFeesAdmin,
		}
	default:
		return nil
	}
}
