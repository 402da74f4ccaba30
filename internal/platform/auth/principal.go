package auth

import (
	"context"
	"errors"
	"strings"
)

// ErrNoPrincipal is returned when a request carries no authenticated identity.
var ErrNoPrincipal = errors.New("no authenticated principal")

// Principal is the identity on whose behalf a request runs.
type Principal struct {
	ID       string
	Username string
}

func PrincipalFromClaims(c Claims) Principal {
	return Principal{ID: c.Subject, Username: c.Username}
}

type principalContextKey struct{}

func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	if !ok || strings.TrimSpace(p.ID) == "" {
		return Principal{}, false
	}
	return p, true
}

// ContextAuthenticator resolves the principal that the HTTP auth middleware
// stored on the request context.
type ContextAuthenticator struct{}

func (ContextAuthenticator) CurrentPrincipal(ctx context.Context) (Principal, error) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return Principal{}, ErrNoPrincipal
	}
	return p, nil
}
