package domain

// TokenPair is the transient result of a successful authentication: a
// short-lived signed access token and a long-lived refresh token. Neither is
// persisted as-is; the refresh token is stored only as a fingerprint on the
// user record.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"` // typically "Bearer"
	ExpiresIn    int64  `json:"expires_in"`           // access token lifetime in seconds
}
