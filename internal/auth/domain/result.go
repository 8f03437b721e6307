package domain

// AuthStatus tags the outcome of a login attempt that did not fail outright.
type AuthStatus int

const (
	// AuthStatusAuthenticated means credentials (and MFA, when gated)
	// were satisfied and a token pair was issued.
	AuthStatusAuthenticated AuthStatus = iota + 1

	// AuthStatusMFAPending means the password was correct but login is
	// suspended until a second factor is verified.
	AuthStatusMFAPending
)

// AuthResult is the tagged outcome of a login flow. Rejections are conveyed
// as typed errors, never as a zero-valued result.
type AuthResult struct {
	Status AuthStatus

	// Set when Status is AuthStatusAuthenticated. Tokens is nil while a
	// second factor is outstanding.
	User   User
	Tokens *TokenPair

	// Set when Status is AuthStatusMFAPending.
	MFAUserID  string
	MFAMethods []string
}
