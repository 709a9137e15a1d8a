package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/skybid/pkg/models"
)

type callerKey struct{}

// Caller is the authenticated identity behind a request.
type Caller struct {
	AccountID uuid.UUID
	KeyID     uuid.UUID
	KeyPrefix string
	Scopes    []string
}

// Allows reports whether the caller may act with scope. Admin keys pass
// every check.
func (c Caller) Allows(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope || s == models.ScopeAdmin {
			return true
		}
	}
	return false
}

// WithCaller returns a copy of ctx carrying c.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller stored by Authenticate.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

// GetAccountID returns the account the request acts as.
func GetAccountID(r *http.Request) (uuid.UUID, bool) {
	c, ok := CallerFrom(r.Context())
	if !ok || c.AccountID == uuid.Nil {
		return uuid.Nil, false
	}
	return c.AccountID, true
}
