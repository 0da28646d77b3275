package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aras-services/aras-gateway/internal/gatewayerr"
	"github.com/aras-services/aras-gateway/internal/middleware"
)

type fakeRouter struct {
	resources map[string]bool // "ms/resource" -> allowed
	actions   map[string]bool // "ms/resource/action" -> allowed
	queues    map[string]string
	types     map[string]string
	public    map[string]bool // "ms/resource/action" (action may be "")
}

func (f *fakeRouter) ResolveQueue(ms string) (string, bool) {
	q, ok := f.queues[strings.ToLower(ms)]
	return q, ok
}
func (f *fakeRouter) ResolveType(ms, resource string) (string, bool) {
	t, ok := f.types[strings.ToLower(ms)+"/"+strings.ToLower(resource)]
	return t, ok
}
func (f *fakeRouter) IsResourceAllowed(ms, resource string) bool {
	return f.resources[strings.ToLower(ms)+"/"+strings.ToLower(resource)]
}
func (f *fakeRouter) IsActionAllowed(ms, resource, action string) bool {
	return f.actions[strings.ToLower(ms)+"/"+strings.ToLower(resource)+"/"+strings.ToLower(action)]
}
func (f *fakeRouter) IsPublic(ms, resource, action string) bool {
	if v, ok := f.public[strings.ToLower(ms)+"/"+strings.ToLower(resource)+"/"+strings.ToLower(action)]; ok {
		return v
	}
	return f.public[strings.ToLower(ms)+"/"+strings.ToLower(resource)+"/"]
}
func (f *fakeRouter) ListMicroservices() []string { return nil }

type fakeBus struct {
	reply []byte
	err   error
	queue string
}

func (f *fakeBus) Call(ctx context.Context, queue string, payload []byte) ([]byte, error) {
	f.queue = queue
	return f.reply, f.err
}

func newTestHandler(router *fakeRouter, bus *fakeBus) (*Handler, *chi.Mux) {
	authz := middleware.NewAuthorizer(router, nil)
	h := &Handler{Router: router, Bus: bus, Authz: authz}
	r := chi.NewRouter()
	h.Mount(r, func(w http.ResponseWriter, r *http.Request) {})
	return h, r
}

func TestPublicListForwardsEnvelopeAndStreamsReply(t *testing.T) {
	router := &fakeRouter{
		resources: map[string]bool{"mainsite/countries": true},
		queues:    map[string]string{"mainsite": "mainsite_queue"},
		types:     map[string]string{"mainsite/countries": "DATA"},
		public:    map[string]bool{"mainsite/countries/": true},
	}
	bus := &fakeBus{reply: []byte(`[{"id":1,"iso":"FR"}]`)}
	_, router2 := newTestHandler(router, bus)

	req := httptest.NewRequest(http.MethodGet, "/api/mainsite/Countries", nil)
	rr := httptest.NewRecorder()
	router2.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, `[{"id":1,"iso":"FR"}]`, rr.Body.String())
	assert.Equal(t, "mainsite_queue", bus.queue)
}

func TestCreateReturnsCreatedWithLocation(t *testing.T) {
	router := &fakeRouter{
		resources: map[string]bool{"mainsite/countries": true},
		queues:    map[string]string{"mainsite": "mainsite_queue"},
		types:     map[string]string{"mainsite/countries": "DATA"},
		public:    map[string]bool{"mainsite/countries/": true},
	}
	bus := &fakeBus{reply: []byte(`42`)}
	_, router2 := newTestHandler(router, bus)

	req := httptest.NewRequest(http.MethodPost, "/api/mainsite/Countries", strings.NewReader(`{"iso":"DE"}`))
	rr := httptest.NewRecorder()
	router2.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "/api/mainsite/Countries/42", rr.Header().Get("Location"))
	assert.Equal(t, "42", rr.Body.String())
}

func TestPrivateResourceWithoutTokenIsUnauthenticated(t *testing.T) {
	router := &fakeRouter{
		resources: map[string]bool{"mainsite/gametypes": true},
		queues:    map[string]string{"mainsite": "mainsite_queue"},
		types:     map[string]string{"mainsite/gametypes": "DATA"},
		public:    map[string]bool{"mainsite/gametypes/": false},
	}
	bus := &fakeBus{reply: []byte(`[]`)}
	_, router2 := newTestHandler(router, bus)

	req := httptest.NewRequest(http.MethodGet, "/api/mainsite/GameTypes/5", nil)
	rr := httptest.NewRecorder()
	router2.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestUnknownMicroserviceIsBadConfig(t *testing.T) {
	router := &fakeRouter{
		resources: map[string]bool{"unknown/x": true},
		queues:    map[string]string{},
		types:     map[string]string{"unknown/x": "DATA"},
		public:    map[string]bool{"unknown/x/": true},
	}
	bus := &fakeBus{}
	_, router2 := newTestHandler(router, bus)

	req := httptest.NewRequest(http.MethodGet, "/api/unknown/X", nil)
	rr := httptest.NewRecorder()
	router2.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Unknown microservice")
}

func TestUpdateReturnsNoContentAndDiscardsReply(t *testing.T) {
	router := &fakeRouter{
		resources: map[string]bool{"mainsite/countries": true},
		queues:    map[string]string{"mainsite": "mainsite_queue"},
		types:     map[string]string{"mainsite/countries": "DATA"},
		public:    map[string]bool{"mainsite/countries/": true},
	}
	bus := &fakeBus{reply: []byte(`ignored`)}
	_, router2 := newTestHandler(router, bus)

	req := httptest.NewRequest(http.MethodPut, "/api/mainsite/Countries/7", strings.NewReader(`{"iso":"BE"}`))
	rr := httptest.NewRecorder()
	router2.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())
}

func TestCancelledCallWritesNoResponse(t *testing.T) {
	router := &fakeRouter{
		resources: map[string]bool{"mainsite/countries": true},
		queues:    map[string]string{"mainsite": "mainsite_queue"},
		types:     map[string]string{"mainsite/countries": "DATA"},
		public:    map[string]bool{"mainsite/countries/": true},
	}
	bus := &fakeBus{err: gatewayerr.New(gatewayerr.KindCancelled, "bus call cancelled")}
	_, router2 := newTestHandler(router, bus)

	req := httptest.NewRequest(http.MethodGet, "/api/mainsite/Countries", nil)
	rr := httptest.NewRecorder()
	router2.ServeHTTP(rr, req)

	require.Equal(t, 200, rr.Code) // httptest.Recorder defaults to 200 when WriteHeader is never called
	assert.Empty(t, rr.Body.String())
}

func TestCustomActionRejectedWhenNotAllowlisted(t *testing.T) {
	router := &fakeRouter{
		resources: map[string]bool{"mainsite/countries": true},
		actions:   map[string]bool{},
		queues:    map[string]string{"mainsite": "mainsite_queue"},
		types:     map[string]string{"mainsite/countries": "DATA"},
		public:    map[string]bool{"mainsite/countries/export": true},
	}
	bus := &fakeBus{}
	_, router2 := newTestHandler(router, bus)

	req := httptest.NewRequest(http.MethodPost, "/api/mainsite/Countries/actions/export", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	router2.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
