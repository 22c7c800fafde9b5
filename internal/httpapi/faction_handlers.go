package httpapi

import (
	"net/http"
	"strings"

	"bastionrp.ru/internal/faction"
	"bastionrp.ru/internal/moderation"
	"bastionrp.ru/internal/token"
)

type createFactionRequest struct {
	Name        string `json:"name"`
	Tag         string `json:"tag"`
	Description string `json:"description"`
}

func (a *API) handleFactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := a.deps.Factions.List(r.Context())
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"factions": list})
	case http.MethodPost:
		snap, ok := token.SnapshotFromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		// Creating factions is a moderation-level action; re-check live state.
		priv, err := a.deps.Resolver.Resolve(r.Context(), snap.UserID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		if !priv.CanModerate() {
			handleDomainError(w, r, moderation.ErrForbidden)
			return
		}
		var req createFactionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			writeError(w, r, http.StatusBadRequest, "faction name is required")
			return
		}
		f := &faction.Faction{Name: req.Name, Tag: strings.TrimSpace(req.Tag), Description: strings.TrimSpace(req.Description)}
		if err := a.deps.Factions.Create(r.Context(), f); err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, f)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleFactionResource serves /v1/factions/{id} with its roster.
func (a *API) handleFactionResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/factions/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	f, err := a.deps.Factions.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	roster, err := a.deps.Factions.Roster(r.Context(), f.ID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"faction": f,
		"members": roster,
	})
}
