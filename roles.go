package auth

import "strings"

const (
	// RoleAdmin bypasses the approval gate.
	RoleAdmin = "admin"
	// RoleUser is the regular staff role.
	RoleUser = "user"
)

// DefaultRoles is the single default role policy. It applies only to a
// profile row whose role column is blank, never to a missing profile or an
// unreadable snapshot.
func DefaultRoles() []string {
	return []string{RoleUser}
}

// RolesFromProfileRole maps the singular profile role column onto a roles
// sequence.
func RolesFromProfileRole(role string) []string {
	role = strings.TrimSpace(role)
	if role == "" {
		return DefaultRoles()
	}
	return []string{role}
}

// PrimaryRole returns roles[0] or "" when roles is empty.
func PrimaryRole(roles []string) string {
	if len(roles) == 0 {
		return ""
	}
	return roles[0]
}
