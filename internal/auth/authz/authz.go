// Package authz implements role-hierarchy authorization checks as pure
// functions over an identity value. It deliberately knows nothing about HTTP;
// transport middleware adapts these checks to requests.
package authz

import (
	"errors"
	"strings"
)

var (
	ErrUnauthenticated         = errors.New("authz: unauthenticated")
	ErrInsufficientPermissions = errors.New("authz: insufficient permissions")
)

// Identity is the resolved caller attached to a request after token
// verification.
type Identity struct {
	UserID string
	Email  string
	Roles  []string
}

// Hierarchy maps a role to the set of roles it subsumes. A user "has" a
// required role when any of their assigned roles subsumes it.
type Hierarchy map[string][]string

// DefaultHierarchy is the fixed role lattice:
// admin > editor > viewer > user.
func DefaultHierarchy() Hierarchy {
	return Hierarchy{
		"admin":  {"admin", "editor", "viewer", "user"},
		"editor": {"editor", "viewer", "user"},
		"viewer": {"viewer", "user"},
		"user":   {"user"},
	}
}

// Expand returns every role subsumed by the given role, including itself.
// Unknown roles subsume only themselves.
func (h Hierarchy) Expand(role string) []string {
	role = strings.ToLower(role)
	if sub, ok := h[role]; ok {
		return sub
	}
	return []string{role}
}

// HasRole reports whether any of the identity's roles subsumes required.
func (h Hierarchy) HasRole(id Identity, required string) bool {
	required = strings.ToLower(required)
	for _, r := range id.Roles {
		for _, sub := range h.Expand(r) {
			if sub == required {
				return true
			}
		}
	}
	return false
}

// RequireAuth fails with ErrUnauthenticated when no identity is present.
func RequireAuth(id *Identity) error {
	if id == nil || id.UserID == "" {
		return ErrUnauthenticated
	}
	return nil
}

// RequireRole requires authentication and the given role.
func (h Hierarchy) RequireRole(id *Identity, required string) error {
	if err := RequireAuth(id); err != nil {
		return err
	}
	if !h.HasRole(*id, required) {
		return ErrInsufficientPermissions
	}
	return nil
}

// RequireAnyRole requires authentication and at least one of the given roles.
func (h Hierarchy) RequireAnyRole(id *Identity, required ...string) error {
	if err := RequireAuth(id); err != nil {
		return err
	}
	for _, r := range required {
		if h.HasRole(*id, r) {
			return nil
		}
	}
	return ErrInsufficientPermissions
}
