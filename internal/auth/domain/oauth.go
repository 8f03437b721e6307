package domain

import "time"

// OAuthState is the ephemeral anti-CSRF binding created when an authorization
// redirect is issued. It is consumed and discarded exactly once on callback,
// matching or not.
type OAuthState struct {
	State     string // unguessable, primary key
	Nonce     string // bound into the authorization request, checked on return
	ReturnTo  string // optional post-login redirect target
	ExpiresAt time.Time
	CreatedAt time.Time
}
