package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aras-services/aras-gateway/internal/domain"
)

func scopePtr(s domain.Scope) *domain.Scope { return &s }

func testConfig() *domain.RoutingConfig {
	return &domain.RoutingConfig{
		Microservices: []domain.Microservice{
			{
				ID:    "MainSite",
				Queue: "mainsite_queue",
				Scope: domain.Private,
				Resources: []domain.Resource{
					{
						Name:          "Countries",
						Type:          "DATA",
						ScopeOverride: scopePtr(domain.Public),
						Actions: []domain.Action{
							{Name: "List"},
							{Name: "Export", ScopeOverride: scopePtr(domain.Private)},
						},
					},
					{
						// No ScopeOverride: inherits the microservice's Private scope.
						Name: "GameTypes",
						Type: "DATA",
					},
					{
						// Zero declared actions: open-by-default at the action layer.
						Name: "Scoreboards",
						Type: "DATA",
					},
				},
			},
			{
				ID:    "infra",
				Queue: "infra_queue",
				Scope: domain.Public,
				Resources: []domain.Resource{
					{Name: "Health", Type: "INFRA"},
				},
			},
		},
	}
}

func TestResolveQueueIsCaseInsensitive(t *testing.T) {
	r := NewRouter(testConfig())

	q1, ok1 := r.ResolveQueue("MainSite")
	q2, ok2 := r.ResolveQueue("mainsite")
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, q1, q2)
	assert.Equal(t, "mainsite_queue", q1)

	_, ok := r.ResolveQueue("unknown")
	assert.False(t, ok)
}

func TestResolveTypeRequiresBothMicroserviceAndResource(t *testing.T) {
	r := NewRouter(testConfig())

	typeTag, ok := r.ResolveType("mainsite", "countries")
	require.True(t, ok)
	assert.Equal(t, "DATA", typeTag)

	_, ok = r.ResolveType("mainsite", "nope")
	assert.False(t, ok)

	_, ok = r.ResolveType("nope", "countries")
	assert.False(t, ok)
}

func TestIsResourceAllowedIsCaseInsensitive(t *testing.T) {
	r := NewRouter(testConfig())

	assert.True(t, r.IsResourceAllowed("MAINSITE", "COUNTRIES"))
	assert.False(t, r.IsResourceAllowed("mainsite", "unknown"))
	assert.False(t, r.IsResourceAllowed("unknown", "countries"))
}

func TestIsActionAllowedOpenByDefaultWhenNoActionsDeclared(t *testing.T) {
	r := NewRouter(testConfig())

	assert.True(t, r.IsActionAllowed("mainsite", "Scoreboards", "AnythingAtAll"))
	assert.True(t, r.IsActionAllowed("mainsite", "Scoreboards", ""))
}

func TestIsActionAllowedChecksDeclaredActionsWhenAnyAreDeclared(t *testing.T) {
	r := NewRouter(testConfig())

	assert.True(t, r.IsActionAllowed("mainsite", "Countries", "list"))
	assert.True(t, r.IsActionAllowed("mainsite", "Countries", "EXPORT"))
	assert.False(t, r.IsActionAllowed("mainsite", "Countries", "Delete"))
}

func TestIsActionAllowedFalseWhenMicroserviceOrResourceMissing(t *testing.T) {
	r := NewRouter(testConfig())

	assert.False(t, r.IsActionAllowed("unknown", "Countries", "List"))
	assert.False(t, r.IsActionAllowed("mainsite", "unknown", "List"))
}

func TestIsPublicActionScopeTakesPrecedenceOverResourceScope(t *testing.T) {
	r := NewRouter(testConfig())

	// Countries is Public at the resource level, but the Export action
	// overrides back to Private.
	assert.True(t, r.IsPublic("mainsite", "Countries", "List"))
	assert.False(t, r.IsPublic("mainsite", "Countries", "Export"))
}

func TestIsPublicFallsBackToResourceThenMicroserviceScope(t *testing.T) {
	r := NewRouter(testConfig())

	// Countries has no action-level override for "List": resource-level
	// Public decides.
	assert.True(t, r.IsPublic("mainsite", "Countries", "List"))
	// GameTypes has no resource-level override: inherits mainsite's Private.
	assert.False(t, r.IsPublic("mainsite", "GameTypes", "List"))
	// No action supplied at all: still falls through resource, then ms scope.
	assert.False(t, r.IsPublic("mainsite", "GameTypes", ""))
}

func TestIsPublicFalseWhenMicroserviceOrResourceMissing(t *testing.T) {
	r := NewRouter(testConfig())

	assert.False(t, r.IsPublic("unknown", "GameTypes", ""))
	assert.False(t, r.IsPublic("mainsite", "unknown", ""))
}

func TestIsPublicMicroserviceLevelPublicScope(t *testing.T) {
	r := NewRouter(testConfig())

	assert.True(t, r.IsPublic("infra", "Health", "Check"))
}

func TestListMicroservicesReturnsAllConfiguredIDsInDeclarationOrder(t *testing.T) {
	r := NewRouter(testConfig())

	assert.Equal(t, []string{"MainSite", "infra"}, r.ListMicroservices())
}
