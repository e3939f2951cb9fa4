package auth

import "fmt"

// Role is a caller role. Exactly one role is carried per credential.
type Role string

// The closed set of roles known to the gatekeeper.
const (
	RoleAdmin    Role = "ADMIN"
	RoleOperator Role = "OPERATOR"
	RoleViewer   Role = "VIEWER"
)

// ParseRole parses a role claim value.
func ParseRole(value string) (Role, error) {
	switch Role(value) {
	case RoleAdmin, RoleOperator, RoleViewer:
		return Role(value), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, value)
	}
}

// SelfOwning reports whether the role implies the caller owns resources
// scoped to their own subject id. Operators own the vehicles they run;
// admins act across owners and viewers own nothing.
func (r Role) SelfOwning() bool {
	return r == RoleOperator
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}
