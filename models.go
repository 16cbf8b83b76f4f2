package auth

import (
	"slices"
	"strings"
)

// CurrentUser is the signed-in principal and its authorization attributes.
// Values are replaced wholesale on every transition.
type CurrentUser struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	Name        string      `json:"name,omitempty"`
	Roles       []string    `json:"roles"`
	IsApproved  bool        `json:"is_approved"`
	LoginMethod LoginMethod `json:"login_method"`
}

// PrimaryRole returns the effective role used by the gate.
func (u *CurrentUser) PrimaryRole() string {
	if u == nil {
		return ""
	}
	return PrimaryRole(u.Roles)
}

// IsAdmin reports whether the primary role is admin.
func (u *CurrentUser) IsAdmin() bool {
	return u.PrimaryRole() == RoleAdmin
}

// Clone returns a deep copy so listeners never share the roles slice.
func (u *CurrentUser) Clone() *CurrentUser {
	if u == nil {
		return nil
	}
	out := *u
	out.Roles = slices.Clone(u.Roles)
	return &out
}

// Profile is one row of the profile table as seen by the resolver.
type Profile struct {
	ID         string
	Email      string
	Name       string
	Role       string
	IsApproved bool
}

// Roles maps the singular role column onto a roles sequence.
func (p *Profile) Roles() []string {
	if p == nil {
		return nil
	}
	return RolesFromProfileRole(p.Role)
}

// RoleSnapshot is the cached copy of the last resolved authorization fields.
type RoleSnapshot struct {
	Roles       []string
	IsApproved  *bool
	LoginMethod LoginMethod
	// Email is the account the snapshot was cached for, empty for snapshots
	// written without an owner.
	Email string
}

// Complete reports whether the snapshot can serve the fast path.
func (s *RoleSnapshot) Complete() bool {
	return s != nil && len(s.Roles) > 0 && s.Roles[0] != "" && s.IsApproved != nil
}

// BelongsTo reports whether the snapshot may serve email. Snapshots without
// an owner are accepted.
func (s *RoleSnapshot) BelongsTo(email string) bool {
	if s == nil {
		return false
	}
	return s.Email == "" || strings.EqualFold(s.Email, email)
}

func snapshotFromUser(u *CurrentUser) RoleSnapshot {
	approved := u.IsApproved
	return RoleSnapshot{
		Roles:       slices.Clone(u.Roles),
		IsApproved:  &approved,
		LoginMethod: u.LoginMethod,
		Email:       u.Email,
	}
}

func userFromProfile(session *Session, profile *Profile) *CurrentUser {
	id := session.User.ID
	if id == "" {
		id = profile.ID
	}
	name := profile.Name
	if name == "" {
		name = session.User.Name
	}
	return &CurrentUser{
		ID:          id,
		Email:       session.User.Email,
		Name:        name,
		Roles:       profile.Roles(),
		IsApproved:  profile.IsApproved,
		LoginMethod: loginMethodOf(session, ""),
	}
}

func userFromSnapshot(session *Session, snap *RoleSnapshot) *CurrentUser {
	return &CurrentUser{
		ID:          session.User.ID,
		Email:       session.User.Email,
		Name:        session.User.Name,
		Roles:       slices.Clone(snap.Roles),
		IsApproved:  *snap.IsApproved,
		LoginMethod: loginMethodOf(session, snap.LoginMethod),
	}
}

func loginMethodOf(session *Session, cached LoginMethod) LoginMethod {
	if session != nil && session.Provider != "" {
		return session.Provider
	}
	if cached != "" {
		return cached
	}
	return LoginMethodEmail
}
