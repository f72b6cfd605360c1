package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
//
// admin    - full control, including compliance settings
// operator - runs campaigns (create, start, pause, resume, cancel)
// viewer   - read-only dashboard access
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

// Known reports whether role is one the engine recognizes.
func Known(role string) bool {
	switch role {
	case RoleAdmin, RoleOperator, RoleViewer:
		return true
	default:
		return false
	}
}
