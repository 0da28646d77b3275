package routing

import (
	"strings"

	"github.com/aras-services/aras-gateway/internal/domain"
)

// Router answers the look-ups the gateway and its health probe need. All
// methods are pure and side-effect-free: they only read the RoutingConfig
// snapshot captured at construction. A Router is safe for concurrent use
// by any number of callers since the underlying config never mutates.
type Router interface {
	// ResolveQueue returns the target queue for ms, or false if ms is not
	// configured. Callers serving HTTP should turn a false here into a
	// 400 Unknown microservice response, not a panic.
	ResolveQueue(ms string) (queue string, ok bool)
	// ResolveType returns the declared type tag for (ms, resource), or
	// false if either is not configured.
	ResolveType(ms, resource string) (typeTag string, ok bool)
	// IsResourceAllowed reports whether ms exists and declares resource.
	IsResourceAllowed(ms, resource string) bool
	// IsActionAllowed reports whether action is permitted on (ms, resource).
	// A resource declaring zero actions allows any action name — this is
	// the spec's deliberately-preserved open-by-default default at the
	// action layer (see SPEC_FULL.md "Open Questions resolved").
	IsActionAllowed(ms, resource, action string) bool
	// IsPublic computes the effective scope for (ms, resource, action)
	// per the inheritance chain: action scope, else resource scope, else
	// microservice scope. action may be empty, in which case only the
	// resource/microservice scopes are consulted.
	IsPublic(ms, resource, action string) bool
	// ListMicroservices returns every configured microservice id, for the
	// aggregated health probe to fan out over.
	ListMicroservices() []string
}

type resourceIndex struct {
	resource domain.Resource
	actions  map[string]domain.Action
}

type microserviceIndex struct {
	microservice domain.Microservice
	resources    map[string]resourceIndex
}

// router is the indexed implementation of Router: resources and actions
// are pre-lowercased into maps at construction time for O(1) look-up,
// as spec §4.3 permits implementations to do.
type router struct {
	order []string // original-case ids, in declaration order, for ListMicroservices
	byID  map[string]microserviceIndex
}

// NewRouter builds a Router from cfg. cfg is expected to have already
// passed Validate; NewRouter does not re-validate it.
func NewRouter(cfg *domain.RoutingConfig) Router {
	r := &router{
		byID: make(map[string]microserviceIndex, len(cfg.Microservices)),
	}

	for _, ms := range cfg.Microservices {
		key := strings.ToLower(ms.ID)
		resources := make(map[string]resourceIndex, len(ms.Resources))
		for _, res := range ms.Resources {
			actions := make(map[string]domain.Action, len(res.Actions))
			for _, act := range res.Actions {
				actions[strings.ToLower(act.Name)] = act
			}
			resources[strings.ToLower(res.Name)] = resourceIndex{resource: res, actions: actions}
		}
		r.byID[key] = microserviceIndex{microservice: ms, resources: resources}
		r.order = append(r.order, ms.ID)
	}

	return r
}

func (r *router) ResolveQueue(ms string) (string, bool) {
	m, ok := r.byID[strings.ToLower(ms)]
	if !ok {
		return "", false
	}
	return m.microservice.Queue, true
}

func (r *router) ResolveType(ms, resource string) (string, bool) {
	m, ok := r.byID[strings.ToLower(ms)]
	if !ok {
		return "", false
	}
	res, ok := m.resources[strings.ToLower(resource)]
	if !ok {
		return "", false
	}
	return res.resource.Type, true
}

func (r *router) IsResourceAllowed(ms, resource string) bool {
	m, ok := r.byID[strings.ToLower(ms)]
	if !ok {
		return false
	}
	_, ok = m.resources[strings.ToLower(resource)]
	return ok
}

func (r *router) IsActionAllowed(ms, resource, action string) bool {
	m, ok := r.byID[strings.ToLower(ms)]
	if !ok {
		return false
	}
	res, ok := m.resources[strings.ToLower(resource)]
	if !ok {
		return false
	}
	if len(res.actions) == 0 {
		// Open by default when no actions are declared: preserved from
		// the source system's observed behavior (spec §9), not a default
		// we would pick for a new design.
		return true
	}
	_, ok = res.actions[strings.ToLower(action)]
	return ok
}

func (r *router) IsPublic(ms, resource, action string) bool {
	m, ok := r.byID[strings.ToLower(ms)]
	if !ok {
		return false
	}
	res, ok := m.resources[strings.ToLower(resource)]
	if !ok {
		return false
	}

	if action != "" {
		if act, ok := res.actions[strings.ToLower(action)]; ok && act.ScopeOverride != nil {
			return *act.ScopeOverride == domain.Public
		}
	}
	if res.resource.ScopeOverride != nil {
		return *res.resource.ScopeOverride == domain.Public
	}
	return m.microservice.Scope == domain.Public
}

func (r *router) ListMicroservices() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
