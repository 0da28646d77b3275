package oidc

import (
	"github.com/golang-jwt/jwt/v5"
)

// flattenedSentinel marks a claims set that has already been processed,
// so a second pass through FlattenRoles is a no-op (spec §4.8, §8
// "Claims idempotence").
const flattenedSentinel = "__kc_roles_flattened"

// FlattenRoles normalizes Keycloak's nested realm_access/resource_access
// role claims into a single flat "roles" list of "realm:<role>" and
// "<clientId>:<role>" values. It mutates claims in place and is a no-op
// if flattenedSentinel is already set. Malformed realm_access or
// resource_access shapes are swallowed silently: a token may legitimately
// lack either claim.
func FlattenRoles(claims jwt.MapClaims) {
	if _, done := claims[flattenedSentinel]; done {
		return
	}

	seen := make(map[string]bool)
	var roles []string
	if existing, ok := claims["roles"].([]interface{}); ok {
		for _, r := range existing {
			if s, ok := r.(string); ok && !seen[s] {
				seen[s] = true
				roles = append(roles, s)
			}
		}
	}

	if realmAccess, ok := claims["realm_access"].(map[string]interface{}); ok {
		if rawRoles, ok := realmAccess["roles"].([]interface{}); ok {
			for _, r := range rawRoles {
				if s, ok := r.(string); ok {
					value := "realm:" + s
					if !seen[value] {
						seen[value] = true
						roles = append(roles, value)
					}
				}
			}
		}
	}

	if resourceAccess, ok := claims["resource_access"].(map[string]interface{}); ok {
		for clientID, raw := range resourceAccess {
			client, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			rawRoles, ok := client["roles"].([]interface{})
			if !ok {
				continue
			}
			for _, r := range rawRoles {
				s, ok := r.(string)
				if !ok {
					continue
				}
				value := clientID + ":" + s
				if !seen[value] {
					seen[value] = true
					roles = append(roles, value)
				}
			}
		}
	}

	claims["roles"] = roles
	claims[flattenedSentinel] = true
}
