package oidc

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

func sampleClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"preferred_username": "alice",
		"realm_access": map[string]interface{}{
			"roles": []interface{}{"offline_access", "uma_authorization"},
		},
		"resource_access": map[string]interface{}{
			"gc-gateway-api": map[string]interface{}{
				"roles": []interface{}{"viewer"},
			},
			"gc-front": map[string]interface{}{
				"roles": []interface{}{"editor"},
			},
		},
	}
}

func TestFlattenRolesProducesExpectedValues(t *testing.T) {
	claims := sampleClaims()
	FlattenRoles(claims)

	roles, ok := claims["roles"].([]string)
	assert.True(t, ok)
	assert.ElementsMatch(t, []string{
		"realm:offline_access",
		"realm:uma_authorization",
		"gc-gateway-api:viewer",
		"gc-front:editor",
	}, roles)
	assert.Equal(t, true, claims[flattenedSentinel])
}

func TestFlattenRolesIsIdempotent(t *testing.T) {
	claims := sampleClaims()
	FlattenRoles(claims)
	first := append([]string(nil), claims["roles"].([]string)...)

	FlattenRoles(claims)
	second := claims["roles"].([]string)

	assert.ElementsMatch(t, first, second)
}

func TestFlattenRolesDedupesAgainstExistingFlatRoles(t *testing.T) {
	claims := sampleClaims()
	claims["roles"] = []interface{}{"realm:offline_access"}

	FlattenRoles(claims)

	roles := claims["roles"].([]string)
	count := 0
	for _, r := range roles {
		if r == "realm:offline_access" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestFlattenRolesSwallowsMalformedClaims(t *testing.T) {
	claims := jwt.MapClaims{
		"realm_access":    "not-an-object",
		"resource_access": []interface{}{"also wrong"},
	}

	assert.NotPanics(t, func() { FlattenRoles(claims) })
	roles, ok := claims["roles"].([]string)
	assert.True(t, ok)
	assert.Empty(t, roles)
}
