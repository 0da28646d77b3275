// Package oidc verifies bearer tokens against an OpenID Connect identity
// provider: discovery document, cached JWKS, and golang-jwt validation
// of issuer, audience, and lifetime. This is the external IdP collaborator
// spec §6 treats as out of scope for the core, made concrete.
package oidc

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// acceptedAudiences mirrors spec §6's fixed audience set for this gateway
// deployment.
var acceptedAudiences = []string{"account", "gc-front", "gc-gateway-api"}

// Principal is the authenticated caller, derived from a verified token.
type Principal struct {
	Name   string
	Roles  []string
	Claims jwt.MapClaims
}

// Verifier validates bearer tokens issued by a single Keycloak realm.
type Verifier struct {
	httpClient *http.Client
	issuer     string
	jwks       *jwksCache
}

// NewVerifier fetches the discovery document at authority once and
// builds a Verifier bound to its issuer and JWKS endpoint. skipTLSVerify
// exists only to let a local/dev Keycloak run with a self-signed
// certificate when RequireHttpsMetadata is false; it must never be true
// in a production AppSettings.Keycloak configuration.
func NewVerifier(ctx context.Context, authority string, skipTLSVerify bool) (*Verifier, error) {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	if skipTLSVerify {
		httpClient.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}} //nolint:gosec
	}

	doc, err := fetchDiscoveryDocument(ctx, httpClient, authority)
	if err != nil {
		return nil, err
	}

	return &Verifier{
		httpClient: httpClient,
		issuer:     doc.Issuer,
		jwks:       newJWKSCache(httpClient, doc.JWKSURI),
	}, nil
}

// Verify parses and validates tokenString, applying the claims flattener
// (C8) before returning the resulting Principal.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Principal, error) {
	claims := jwt.MapClaims{}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	)

	_, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("oidc: token missing kid header")
		}
		return v.jwks.key(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("oidc: token validation failed: %w", err)
	}

	if !hasAcceptedAudience(claims) {
		return nil, fmt.Errorf("oidc: token audience not in %v", acceptedAudiences)
	}

	FlattenRoles(claims)

	name, _ := claims["preferred_username"].(string)
	var roles []string
	if rawRoles, ok := claims["roles"].([]string); ok {
		roles = rawRoles
	}

	return &Principal{Name: name, Roles: roles, Claims: claims}, nil
}

// hasAcceptedAudience reports whether claims' "aud" intersects
// acceptedAudiences. The "aud" claim may decode as a single string or a
// list, depending on the token issuer.
func hasAcceptedAudience(claims jwt.MapClaims) bool {
	var auds []string
	switch v := claims["aud"].(type) {
	case string:
		auds = []string{v}
	case []interface{}:
		for _, a := range v {
			if s, ok := a.(string); ok {
				auds = append(auds, s)
			}
		}
	}

	for _, a := range auds {
		for _, accepted := range acceptedAudiences {
			if a == accepted {
				return true
			}
		}
	}
	return false
}
