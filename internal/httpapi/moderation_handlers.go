package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"bastionrp.ru/internal/roles"
	"bastionrp.ru/internal/token"
)

type sanctionRequest struct {
	Username string `json:"username"`
	Reason   string `json:"reason"`
	// Ban uses hours (null = permanent), mute uses minutes (null = 60).
	DurationHours   *int `json:"duration_hours,omitempty"`
	DurationMinutes *int `json:"duration_minutes,omitempty"`
}

type targetRequest struct {
	Username string `json:"username"`
}

type assignFactionRequest struct {
	Username  string `json:"username"`
	FactionID string `json:"faction_id"`
	Rank      string `json:"rank"`
}

type roleRequest struct {
	Name        string   `json:"name"`
	Color       string   `json:"color"`
	Permissions []string `json:"permissions"`
	Icon        string   `json:"icon"`
	AdminRole   bool     `json:"is_admin_role"`
}

type roleUpdateRequest struct {
	Name        *string  `json:"name"`
	Color       *string  `json:"color"`
	Icon        *string  `json:"icon"`
	Permissions []string `json:"permissions"`
	AdminRole   *bool    `json:"is_admin_role"`
	Active      *bool    `json:"is_active"`
}

// actor extracts the authenticated caller. The middleware guarantees a
// snapshot on every admin-surface request.
func actor(w http.ResponseWriter, r *http.Request) (token.Snapshot, bool) {
	snap, ok := token.SnapshotFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return token.Snapshot{}, false
	}
	return snap, true
}

func (a *API) handleBan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	snap, ok := actor(w, r)
	if !ok {
		return
	}
	var req sanctionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	s, err := a.deps.Proc.Ban(r.Context(), snap.UserID, req.Username, req.Reason, req.DurationHours)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (a *API) handleUnban(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	snap, ok := actor(w, r)
	if !ok {
		return
	}
	var req targetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.deps.Proc.Unban(r.Context(), snap.UserID, req.Username); err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "unbanned"})
}

func (a *API) handleMute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	snap, ok := actor(w, r)
	if !ok {
		return
	}
	var req sanctionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	s, err := a.deps.Proc.Mute(r.Context(), snap.UserID, req.Username, req.Reason, req.DurationMinutes)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (a *API) handleUnmute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	snap, ok := actor(w, r)
	if !ok {
		return
	}
	var req targetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.deps.Proc.Unmute(r.Context(), snap.UserID, req.Username); err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "unmuted"})
}

func (a *API) handleAssignFaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	snap, ok := actor(w, r)
	if !ok {
		return
	}
	var req assignFactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.deps.Proc.AssignFaction(r.Context(), snap.UserID, req.Username, req.FactionID, req.Rank); err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "assigned"})
}

func (a *API) handleRemoveFaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	snap, ok := actor(w, r)
	if !ok {
		return
	}
	var req assignFactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.deps.Proc.RemoveFaction(r.Context(), snap.UserID, req.Username, req.FactionID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "removed"})
}

func (a *API) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	users, err := a.deps.Users.SearchUsers(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := a.deps.AuditLog.Recent(r.Context(), limit)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := a.deps.Roles.List(r.Context())
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": list})
	case http.MethodPost:
		snap, ok := actor(w, r)
		if !ok {
			return
		}
		var req roleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.deps.Proc.CreateRole(r.Context(), snap.UserID, roles.CustomRole{
			Name:        req.Name,
			Color:       req.Color,
			Permissions: req.Permissions,
			Icon:        req.Icon,
			AdminRole:   req.AdminRole,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/admin/roles/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		role, err := a.deps.Roles.Get(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	case http.MethodPut:
		snap, ok := actor(w, r)
		if !ok {
			return
		}
		var req roleUpdateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.deps.Proc.UpdateRole(r.Context(), snap.UserID, id, roles.Update{
			Name:        req.Name,
			Color:       req.Color,
			Icon:        req.Icon,
			Permissions: req.Permissions,
			AdminRole:   req.AdminRole,
			Active:      req.Active,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}
