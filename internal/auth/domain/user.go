package domain

import (
	"slices"
	"time"
)

// RoleUser is the baseline role assigned at registration when none is given.
const RoleUser = "user"

// User is the identity record persisted by the credential store.
type User struct {
	ID           string
	Email        string // globally unique, stored lowercase
	Username     string // globally unique
	PasswordHash string // argon2id PHC string; empty for federated-only accounts

	Role  string   // primary role
	Roles []string // non-empty; always contains Role

	EmailVerified bool

	// Provider names the external identity provider for federated accounts,
	// empty for local credential accounts. ProviderSubject is the provider's
	// stable subject identifier, the join key for repeat federated logins.
	Provider        string
	ProviderSubject string

	// MFAEnabled means a TOTP secret exists; MFAVerified means the user has
	// confirmed enrollment. Only a verified enrollment gates login.
	MFAEnabled  bool
	MFAVerified bool
	MFASecret   *string // base32 TOTP secret, present iff MFAEnabled

	// At most one refresh token is valid per user. Only its SHA-256
	// fingerprint is stored; rotation swaps it under compare-and-set.
	RefreshTokenHash    *string
	RefreshTokenExpires *time.Time

	LastLogin *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalizeRoles enforces the role invariants: the primary role defaults to
// RoleUser, the role set is non-empty and contains the primary role.
func (u *User) NormalizeRoles() {
	if u.Role == "" {
		u.Role = RoleUser
	}
	if !slices.Contains(u.Roles, u.Role) {
		u.Roles = append([]string{u.Role}, u.Roles...)
	}
}

// MFAGatesLogin reports whether login must suspend for a second factor.
// An enrolled-but-unverified secret does not gate login.
func (u *User) MFAGatesLogin() bool {
	return u.MFAEnabled && u.MFAVerified
}
