package httpapi

import (
	"net/http"
	"strings"

	"bastionrp.ru/internal/identity"
	"bastionrp.ru/internal/token"
)

type profileRequest struct {
	Nickname    *string `json:"nickname"`
	Bio         *string `json:"bio"`
	AvatarURL   *string `json:"avatar_url"`
	StatusText  *string `json:"status_text"`
	DiscordLink *string `json:"discord_link"`
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	snap, ok := token.SnapshotFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	switch r.Method {
	case http.MethodGet:
		user, err := a.deps.Users.Lookup(r.Context(), snap.UserID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodPut:
		var req profileRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.deps.Users.UpdateProfile(r.Context(), snap.UserID, identity.ProfileUpdate{
			Nickname:    req.Nickname,
			Bio:         req.Bio,
			AvatarURL:   req.AvatarURL,
			StatusText:  req.StatusText,
			DiscordLink: req.DiscordLink,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

// handleUserResource serves /v1/users/{username} and
// /v1/users/{username}/sanctions.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	user, err := a.deps.Users.LookupUsername(r.Context(), parts[0])
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	switch {
	case len(parts) == 1:
		priv, err := a.deps.Resolver.ResolveUser(r.Context(), user)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		status, err := a.deps.Ledger.Status(r.Context(), user.ID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		memberships, err := a.deps.Factions.MembershipsOf(r.Context(), user.ID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		// Public view: no password hash is serialized, sanctions are flags.
		writeJSON(w, http.StatusOK, map[string]any{
			"user":      user,
			"privilege": priv,
			"sanctions": status,
			"factions":  memberships,
		})
	case len(parts) == 2 && parts[1] == "sanctions":
		history, err := a.deps.Ledger.History(r.Context(), user.ID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		status, err := a.deps.Ledger.Status(r.Context(), user.ID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"current": status,
			"history": history,
		})
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}
