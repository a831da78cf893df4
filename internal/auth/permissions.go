package auth

// Permission represents a named capability in the API.
type Permission string

// Permission constants.
const (
	PermBindingRead    Permission = "binding:read"
	PermBindingTrigger Permission = "binding:trigger"
	PermBindingReload  Permission = "binding:reload"
	PermTargetPing     Permission = "target:ping"
	PermVariableRead   Permission = "variable:read"
	PermVariableWrite  Permission = "variable:write"
	PermAuditRead      Permission = "audit:read"
)

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleOperator: {
		PermBindingRead,
		PermBindingTrigger,
		PermTargetPing,
		PermVariableRead,
	},
	RoleAdmin: {
		PermBindingRead,
		PermBindingTrigger,
		PermBindingReload,
		PermTargetPing,
		PermVariableRead,
		PermVariableWrite,
		PermAuditRead,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
