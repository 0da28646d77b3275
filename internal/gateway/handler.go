// Package gateway implements C6, the request→envelope→reply pipeline:
// route parameter extraction, authorization via middleware.Authorizer,
// envelope construction, invocation of the bus client, and response
// shaping, wired together the way the teacher's delivery/http handlers
// dispatch into its usecase layer.
package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aras-services/aras-gateway/internal/domain"
	"github.com/aras-services/aras-gateway/internal/gatewayerr"
	"github.com/aras-services/aras-gateway/internal/middleware"
	"github.com/aras-services/aras-gateway/internal/routing"
)

// BusCaller is the subset of busclient.Client the handler depends on,
// narrowed to an interface so tests can substitute an in-memory fake
// instead of dialing a real broker.
type BusCaller interface {
	Call(ctx context.Context, queue string, payload []byte) ([]byte, error)
}

// Handler wires C3 (routing.Router), C5 (middleware.Authorizer) and C4
// (BusCaller) into the eight HTTP routes spec §4.6 describes.
type Handler struct {
	Router         routing.Router
	Bus            BusCaller
	Authz          *middleware.Authorizer
	ShowExceptions bool
}

// Mount registers /api/health plus the seven resource routes onto r.
func (h *Handler) Mount(r chi.Router, health http.HandlerFunc) {
	r.Get("/api/health", health)

	r.Post("/api/{ms}/{resource}", h.create)
	r.Get("/api/{ms}/{resource}", h.list)
	r.Get("/api/{ms}/{resource}/{id:[0-9]+}", h.get)
	r.Put("/api/{ms}/{resource}/{id:[0-9]+}", h.update)
	r.Delete("/api/{ms}/{resource}/{id:[0-9]+}", h.delete)
	r.Post("/api/{ms}/{resource}/actions/{action}", h.customAction)
	r.Post("/api/{ms}/{resource}/{id:[0-9]+}/actions/{action}", h.customActionWithID)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	ms, resource := chi.URLParam(r, "ms"), chi.URLParam(r, "resource")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.fail(w, r, gatewayerr.Wrap(gatewayerr.KindUnexpected, "failed to read request body", err))
		return
	}
	h.run(w, r, ms, resource, domain.ActionCreate, nil, string(body), func(reply []byte) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Location", fmt.Sprintf("/api/%s/%s/%s", ms, resource, reply))
		w.WriteHeader(http.StatusCreated)
		w.Write(reply)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	ms, resource := chi.URLParam(r, "ms"), chi.URLParam(r, "resource")
	h.run(w, r, ms, resource, domain.ActionList, nil, "", h.writeOKJSON(w))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	ms, resource := chi.URLParam(r, "ms"), chi.URLParam(r, "resource")
	id, err := parseID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.run(w, r, ms, resource, domain.ActionGet, nil, strconv.FormatInt(id, 10), h.writeOKJSON(w))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	ms, resource := chi.URLParam(r, "ms"), chi.URLParam(r, "resource")
	id, err := parseID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	body, err2 := io.ReadAll(r.Body)
	if err2 != nil {
		h.fail(w, r, gatewayerr.Wrap(gatewayerr.KindUnexpected, "failed to read request body", err2))
		return
	}
	h.run(w, r, ms, resource, domain.ActionUpdate, &id, string(body), func(reply []byte) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	ms, resource := chi.URLParam(r, "ms"), chi.URLParam(r, "resource")
	id, err := parseID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.run(w, r, ms, resource, domain.ActionDelete, nil, strconv.FormatInt(id, 10), func(reply []byte) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func (h *Handler) customAction(w http.ResponseWriter, r *http.Request) {
	ms, resource, action := chi.URLParam(r, "ms"), chi.URLParam(r, "resource"), chi.URLParam(r, "action")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.fail(w, r, gatewayerr.Wrap(gatewayerr.KindUnexpected, "failed to read request body", err))
		return
	}
	h.runAction(w, r, ms, resource, action, nil, string(body), h.writeOKJSON(w))
}

func (h *Handler) customActionWithID(w http.ResponseWriter, r *http.Request) {
	ms, resource, action := chi.URLParam(r, "ms"), chi.URLParam(r, "resource"), chi.URLParam(r, "action")
	id, err := parseID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	body, err2 := io.ReadAll(r.Body)
	if err2 != nil {
		h.fail(w, r, gatewayerr.Wrap(gatewayerr.KindUnexpected, "failed to read request body", err2))
		return
	}
	h.runAction(w, r, ms, resource, action, &id, string(body), h.writeOKJSON(w))
}

func (h *Handler) writeOKJSON(w http.ResponseWriter) func([]byte) {
	return func(reply []byte) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(reply)
	}
}

// run executes the implicit-CRUD pipeline for action (no per-resource
// action-allowlist check applies to List/Get/Create/Update/Delete).
func (h *Handler) run(w http.ResponseWriter, r *http.Request, ms, resource, action string, id *int64, data string, onSuccess func([]byte)) {
	h.execute(w, r, ms, resource, action, false, id, data, onSuccess)
}

// runAction executes the pipeline for a configured custom action, which
// additionally requires isActionAllowed (spec §4.6 step 2).
func (h *Handler) runAction(w http.ResponseWriter, r *http.Request, ms, resource, action string, id *int64, data string, onSuccess func([]byte)) {
	h.execute(w, r, ms, resource, action, true, id, data, onSuccess)
}

func (h *Handler) execute(w http.ResponseWriter, r *http.Request, ms, resource, action string, checkAction bool, id *int64, data string, onSuccess func([]byte)) {
	// C5: authorize before anything else in the pipeline proceeds.
	principal, err := h.Authz.Authorize(r, ms, resource, action)
	if err != nil {
		h.fail(w, r, gatewayerr.Wrap(gatewayerr.KindUnauthenticated, "authentication required", err))
		return
	}
	if principal != nil {
		r = r.WithContext(middleware.WithPrincipal(r.Context(), principal))
	}

	// C6 step 1.
	if !h.Router.IsResourceAllowed(ms, resource) {
		h.fail(w, r, gatewayerr.New(gatewayerr.KindUnauthorized, "resource not permitted for this microservice"))
		return
	}
	// C6 step 2 (custom actions only).
	if checkAction && !h.Router.IsActionAllowed(ms, resource, action) {
		h.fail(w, r, gatewayerr.New(gatewayerr.KindUnauthorized, "action not permitted for this resource"))
		return
	}
	// C6 step 3.
	queue, ok := h.Router.ResolveQueue(ms)
	if !ok {
		h.fail(w, r, gatewayerr.New(gatewayerr.KindBadConfig, "Unknown microservice."))
		return
	}
	// C6 step 5.
	typeTag, ok := h.Router.ResolveType(ms, resource)
	if !ok {
		h.fail(w, r, gatewayerr.New(gatewayerr.KindNotFound, "resource type not found"))
		return
	}

	// C6 step 6.
	payload, err := buildEnvelope(typeTag, resource, action, id, data)
	if err != nil {
		h.fail(w, r, gatewayerr.Wrap(gatewayerr.KindUnexpected, "failed to build envelope", err))
		return
	}

	// C6 step 7.
	reply, err := h.Bus.Call(r.Context(), queue, payload)
	if err != nil {
		if gwErr, ok := err.(*gatewayerr.Error); ok {
			if gwErr.Kind == gatewayerr.KindCancelled {
				// spec §7: a cancelled call gets no response at all.
				return
			}
			h.fail(w, r, gwErr)
			return
		}
		h.fail(w, r, gatewayerr.Wrap(gatewayerr.KindUnexpected, "upstream call failed", err))
		return
	}

	onSuccess(reply)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err *gatewayerr.Error) {
	switch err.Kind {
	case gatewayerr.KindUnauthenticated:
		// spec §7: Unauthenticated is a bare 401 with no body, distinct
		// from Unauthorized's 401-plus-text.
		w.WriteHeader(gatewayerr.StatusFor(err.Kind))
	case gatewayerr.KindUnauthorized, gatewayerr.KindBadConfig:
		writePlainText(w, gatewayerr.StatusFor(err.Kind), err.Message)
	default:
		writeError(w, r, err, h.ShowExceptions)
	}
}

func parseID(r *http.Request) (int64, *gatewayerr.Error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, gatewayerr.New(gatewayerr.KindBadConfig, "invalid id")
	}
	return id, nil
}
