package oidc

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
)

type jsonWebKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksDocument struct {
	Keys []jsonWebKey `json:"keys"`
}

// jwksCache keeps the most recently fetched JWKS keyed by kid. A lookup
// miss refreshes the whole set within that lookup, before it returns, so
// key rotation on the IdP side is picked up without a gateway restart, as
// SPEC_FULL.md's C5 supplement describes.
type jwksCache struct {
	httpClient *http.Client
	jwksURI    string

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	refreshMu sync.Mutex
}

func newJWKSCache(httpClient *http.Client, jwksURI string) *jwksCache {
	return &jwksCache{
		httpClient: httpClient,
		jwksURI:    jwksURI,
		keys:       make(map[string]*rsa.PublicKey),
	}
}

func (c *jwksCache) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	key, ok := c.keys[kid]
	c.mu.RUnlock()
	if ok {
		return key, nil
	}

	if err := c.refresh(ctx, kid); err != nil {
		return nil, err
	}

	c.mu.RLock()
	key, ok = c.keys[kid]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("oidc: unknown signing key %q", kid)
	}
	return key, nil
}

// refresh is serialized: concurrent unknown-kid look-ups collapse into a
// single round trip to the IdP instead of a thundering herd.
func (c *jwksCache) refresh(ctx context.Context, kid string) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// A refresh that finished while this caller waited may already have
	// brought in kid; skip the round trip then.
	c.mu.RLock()
	_, ok := c.keys[kid]
	c.mu.RUnlock()
	if ok {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.jwksURI, nil)
	if err != nil {
		return fmt.Errorf("oidc: build jwks request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("oidc: fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("oidc: decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := decodeRSAPublicKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}

	c.mu.Lock()
	c.keys = keys
	c.mu.Unlock()

	return nil
}

func decodeRSAPublicKey(nEncoded, eEncoded string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nEncoded)
	if err != nil {
		return nil, fmt.Errorf("oidc: decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eEncoded)
	if err != nil {
		return nil, fmt.Errorf("oidc: decode exponent: %w", err)
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
