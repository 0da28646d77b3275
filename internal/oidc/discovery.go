package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// discoveryDocument is the subset of the OpenID Connect discovery
// document (RFC 8414 / OIDC Discovery) the gateway needs: where to find
// keys, and what issuer to expect in every token.
type discoveryDocument struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

func fetchDiscoveryDocument(ctx context.Context, client *http.Client, authority string) (*discoveryDocument, error) {
	url := authority + "/.well-known/openid-configuration"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("oidc: build discovery request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oidc: fetch discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oidc: discovery document returned status %d", resp.StatusCode)
	}

	var doc discoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("oidc: decode discovery document: %w", err)
	}

	if doc.Issuer == "" || doc.JWKSURI == "" {
		return nil, fmt.Errorf("oidc: discovery document missing issuer or jwks_uri")
	}

	return &doc, nil
}
