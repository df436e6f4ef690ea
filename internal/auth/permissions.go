package auth

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermLockRead         Permission = "lock:read"
	PermLockOperate      Permission = "lock:operate"
	PermCredentialManage Permission = "credential:manage"
	PermUserManage       Permission = "user:manage"
	PermAuditRead        Permission = "audit:read"
	PermSystemAdmin      Permission = "system:admin"
)

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for the authorisation model.
// Lock permissions are additionally ownership-scoped: having
// lock:operate does not grant access to locks the account does
// not own, and no role bypasses that check.
var rolePermissions = map[Role][]Permission{
	RoleUser: {
		PermLockRead,
		PermLockOperate,
		PermCredentialManage,
	},
	RoleAdmin: {
		PermLockRead,
		PermLockOperate,
		PermCredentialManage,
		PermUserManage,
		PermAuditRead,
		PermSystemAdmin,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
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
