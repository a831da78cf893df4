package auth

import "errors"

// Role represents an authorisation tier.
type Role string

const (
	// RoleController is the identity the controller presents to target
	// agents. It carries no API permissions.
	RoleController Role = "controller"

	// RoleOperator may list bindings and fire triggers.
	RoleOperator Role = "operator"

	// RoleAdmin may additionally reload bindings, write variables and read
	// the audit log.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of roles a token may carry.
var ValidRoles = []Role{RoleController, RoleOperator, RoleAdmin}

// IsValidRole returns true if r is a known role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Sentinel errors for auth operations.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrForbidden    = errors.New("insufficient permissions")
	ErrNoSecret     = errors.New("jwt secret not configured")
)
