package httpapi

import (
	"net/http"
	"time"

	"bastionrp.ru/internal/audit"
	"bastionrp.ru/internal/identity"
	"bastionrp.ru/internal/token"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	User      *identity.User `json:"user"`
	IsOwner   bool           `json:"is_owner"`
	IsAdmin   bool           `json:"is_admin"`
}

// issueFor re-resolves privilege from live state and embeds the snapshot in a
// fresh token.
func (a *API) issueFor(r *http.Request, user *identity.User, ttl time.Duration) (tokenResponse, error) {
	priv, err := a.deps.Resolver.ResolveUser(r.Context(), user)
	if err != nil {
		return tokenResponse{}, err
	}
	snap := token.Snapshot{
		UserID:   user.ID,
		Username: user.Username,
		Owner:    priv.IsOwner,
		Admin:    priv.IsAdmin(),
	}
	raw, expiresAt, err := a.deps.Issuer.Issue(snap, ttl)
	if err != nil {
		return tokenResponse{}, err
	}
	return tokenResponse{
		Token:     raw,
		ExpiresAt: expiresAt,
		User:      user,
		IsOwner:   priv.IsOwner,
		IsAdmin:   priv.IsAdmin(),
	}, nil
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.deps.Users.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	resp, err := a.issueFor(r, user, a.deps.LocalTokenTTL)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"user_id":  user.ID,
		"username": user.Username,
	})
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.deps.Users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	resp, err := a.issueFor(r, user, a.deps.LocalTokenTTL)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleDiscordRedirect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.deps.Discord == nil || !a.deps.Discord.Configured() {
		writeError(w, r, http.StatusServiceUnavailable, "discord login is not configured")
		return
	}
	http.Redirect(w, r, a.deps.Discord.AuthURL(r.URL.Query().Get("state")), http.StatusFound)
}

func (a *API) handleDiscordCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.deps.Discord == nil || !a.deps.Discord.Configured() {
		writeError(w, r, http.StatusServiceUnavailable, "discord login is not configured")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, r, http.StatusBadRequest, "code is required")
		return
	}
	accessToken, err := a.deps.Discord.Exchange(r.Context(), code)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "discord authorization failed")
		return
	}
	profile, err := a.deps.Discord.FetchUser(r.Context(), accessToken)
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "discord user lookup failed")
		return
	}
	user, err := a.deps.Users.DiscordLogin(r.Context(), profile)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	resp, err := a.issueFor(r, user, a.deps.DiscordTokenTTL)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.discord_login", map[string]any{
		"user_id":    user.ID,
		"discord_id": user.DiscordID,
	})
	writeJSON(w, http.StatusOK, resp)
}

type verifyCodeRequest struct {
	Code string `json:"code"`
}

// handleVerifyAdminCode checks a submitted admin access code against the
// active one. The check never reveals the code itself.
func (a *API) handleVerifyAdminCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req verifyCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ok, err := a.deps.Codes.VerifyCode(r.Context(), req.Code)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": ok})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	snap, ok := token.SnapshotFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	user, err := a.deps.Users.Lookup(r.Context(), snap.UserID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
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
	writeJSON(w, http.StatusOK, map[string]any{
		"user":      user,
		"privilege": priv,
		"sanctions": status,
	})
}
