package httpapi

import (
	"errors"
	"net/http"

	"ndjobi.org/internal/auth"
	"ndjobi.org/internal/ctxstore"
	"ndjobi.org/internal/domain"
)

type contextRequest struct {
	AppID            string `json:"app_id"`
	Mode             string `json:"mode"`
	DelegatedActorID string `json:"delegated_actor_id"`
	DelegatedRealm   string `json:"delegated_realm"`
}

func (a *API) handleApps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":       a.catalog.ListApps(),
		"default_app": a.catalog.DefaultAppID(),
	})
}

func (a *API) handleNetworks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": a.catalog.ListNetworks()})
}

// handleCapabilities resolves modules for the context carried by the request headers.
// A delegation token switches the context to delegated mode for its actor and realm.
func (a *API) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	caps, ok := a.resolver.Resolve(a.requestContext(r))
	if !ok {
		writeError(w, r, http.StatusNotFound, "capabilities unavailable")
		return
	}
	writeJSON(w, http.StatusOK, caps)
}

func (a *API) requestContext(r *http.Request) domain.ExecutionContext {
	ec := ctxstore.FromHeaders(r.Header)
	if ec.AppID == "" {
		if a.contexts != nil {
			ec = a.contexts.Load(r.Context())
		} else {
			ec.AppID = a.catalog.DefaultAppID()
		}
	}
	if actor, ok := auth.ActorFromContext(r.Context()); ok {
		ec.Mode = domain.ModeDelegated
		ec.DelegatedActorID = actor.ID
		ec.DelegatedRealm = actor.Realm
	}
	return ec
}

func (a *API) handleContext(w http.ResponseWriter, r *http.Request) {
	if a.contexts == nil {
		writeError(w, r, http.StatusServiceUnavailable, "context store disabled")
		return
	}
	switch r.Method {
	case http.MethodGet:
		ec := a.contexts.Load(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{
			"context": ec,
			"headers": ctxstore.DeriveHeaders(ec),
		})
	case http.MethodPut:
		a.updateContext(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) updateContext(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ec, err := a.contexts.Update(r.Context(), ctxstore.Patch{
		AppID:   req.AppID,
		Mode:    req.Mode,
		ActorID: req.DelegatedActorID,
		Realm:   req.DelegatedRealm,
	})
	switch {
	case errors.Is(err, ctxstore.ErrUnknownApp):
		writeError(w, r, http.StatusNotFound, "app not found")
		return
	case errors.Is(err, domain.ErrInvalidContext):
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, r, http.StatusInternalServerError, "context save failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"context": ec,
		"headers": ctxstore.DeriveHeaders(ec),
	})
}
