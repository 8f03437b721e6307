package httpx

import (
	"context"

	"github.com/loxleyhq/authcore/internal/auth/authz"
)

type ctxKey string

const ctxKeyIdentity ctxKey = "identity"

// ContextWithIdentity attaches the resolved caller to the request context.
func ContextWithIdentity(ctx context.Context, id authz.Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

// IdentityFromContext returns the resolved caller, or nil when the request
// was not authenticated.
func IdentityFromContext(ctx context.Context) *authz.Identity {
	if id, ok := ctx.Value(ctxKeyIdentity).(authz.Identity); ok {
		return &id
	}
	return nil
}
