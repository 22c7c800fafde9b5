package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"

	"bastionrp.ru/internal/audit"
	"bastionrp.ru/internal/privilege"
)

type appointRequest struct {
	Username string `json:"username"`
	Rank     string `json:"rank"`
	RoleID   string `json:"role_id"`
}

func (a *API) handleOwnerAdmins(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		roster, err := a.deps.Admins.Roster(r.Context())
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"admins": roster})
	case http.MethodPost:
		snap, ok := actor(w, r)
		if !ok {
			return
		}
		var req appointRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		rec, err := a.deps.Proc.AppointAdmin(r.Context(), snap.UserID, req.Username, req.Rank, req.RoleID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	case http.MethodDelete:
		snap, ok := actor(w, r)
		if !ok {
			return
		}
		var req targetRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.deps.Proc.RemoveAdmin(r.Context(), snap.UserID, req.Username); err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "removed"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

// handleAdminCode serves and rotates the shared admin access code.
func (a *API) handleAdminCode(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		code, err := a.deps.Codes.ActiveCode(r.Context())
		if err != nil {
			if errors.Is(err, privilege.ErrNotFound) {
				writeJSON(w, http.StatusOK, map[string]any{"code": ""})
				return
			}
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"code": code})
	case http.MethodPost:
		code := newAdminCode()
		if err := a.deps.Codes.Rotate(r.Context(), code); err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "owner.admin_code_rotated", nil)
		writeJSON(w, http.StatusCreated, map[string]any{"code": code})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func newAdminCode() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
