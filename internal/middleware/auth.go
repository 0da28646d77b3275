// Package middleware implements the gateway's ambient HTTP middleware
// (CORS, trace id propagation) plus the OIDC Authorizer that backs C5.
// C5 is invoked directly from the C6 handler rather than as a chi
// middleware: the effective action name for the implicit CRUD routes
// depends on the HTTP verb and id presence, which isn't known until the
// handler has parsed the route, so isPublic can't be evaluated any
// earlier than that.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/aras-services/aras-gateway/internal/oidc"
	"github.com/aras-services/aras-gateway/internal/routing"
)

// Authorizer implements C5: given (ms, resource, action) and the
// incoming request, decide allow/deny and surface the authenticated
// Principal when authentication actually happened.
type Authorizer struct {
	router   routing.Router
	verifier *oidc.Verifier
}

func NewAuthorizer(router routing.Router, verifier *oidc.Verifier) *Authorizer {
	return &Authorizer{router: router, verifier: verifier}
}

// Authorize implements spec §4.5 steps 2-3: public routes proceed with no
// principal; private routes require a valid bearer token. The returned
// error is nil and the Principal nil for a public route.
func (a *Authorizer) Authorize(r *http.Request, ms, resource, action string) (*oidc.Principal, error) {
	if a.router.IsPublic(ms, resource, action) {
		return nil, nil
	}

	token, ok := bearerToken(r)
	if !ok {
		return nil, fmt.Errorf("authorization header required")
	}

	principal, err := a.verifier.Verify(r.Context(), token)
	if err != nil {
		return nil, fmt.Errorf("invalid or expired token: %w", err)
	}
	return principal, nil
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	return strings.TrimPrefix(h, prefix), true
}

type principalKey struct{}

// WithPrincipal attaches p to ctx for downstream handlers that want the
// caller's identity (e.g. audit logging); C6 itself does not need it.
func WithPrincipal(ctx context.Context, p *oidc.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (*oidc.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*oidc.Principal)
	return p, ok
}
