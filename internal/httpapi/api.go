// Package httpapi binds the platform's services to a REST surface under /v1.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"bastionrp.ru/internal/audit"
	"bastionrp.ru/internal/discord"
	"bastionrp.ru/internal/faction"
	"bastionrp.ru/internal/forum"
	"bastionrp.ru/internal/identity"
	"bastionrp.ru/internal/moderation"
	"bastionrp.ru/internal/obs"
	"bastionrp.ru/internal/privilege"
	"bastionrp.ru/internal/roles"
	"bastionrp.ru/internal/sanction"
	"bastionrp.ru/internal/token"
)

// ReadyProbe is a readiness check, typically a database ping.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps carries the wired services the API exposes.
type Deps struct {
	Users    *identity.Service
	Issuer   *token.Issuer
	Resolver *privilege.Resolver
	Proc     *moderation.Processor
	Roles    *roles.Service
	Ledger   *sanction.Ledger
	AuditLog audit.Store
	Admins   privilege.AdminStore
	Codes    privilege.CodeStore
	Factions faction.Store
	Forum    *forum.Service
	Discord  *discord.Client

	DiscordTokenTTL time.Duration
	LocalTokenTTL   time.Duration
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	deps Deps

	rateBurst  int
	ratePerSec int
}

func New(rp ReadyProbe, version string, deps Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		deps:       deps,
		rateBurst:  40,
		ratePerSec: 20,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/discord", a.handleDiscordRedirect)
	a.mux.HandleFunc("/v1/auth/discord/callback", a.handleDiscordCallback)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)
	a.mux.HandleFunc("/v1/auth/verify-admin-code", a.handleVerifyAdminCode)

	// profile and public user data
	a.mux.HandleFunc("/v1/profile", a.handleProfile)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)

	// forum
	a.mux.HandleFunc("/v1/forum/posts", a.handleForumPosts)
	a.mux.HandleFunc("/v1/forum/posts/", a.handleForumPostResource)

	// factions
	a.mux.HandleFunc("/v1/factions", a.handleFactions)
	a.mux.HandleFunc("/v1/factions/", a.handleFactionResource)

	// admin surface
	a.mux.HandleFunc("/v1/admin/ban", a.handleBan)
	a.mux.HandleFunc("/v1/admin/unban", a.handleUnban)
	a.mux.HandleFunc("/v1/admin/mute", a.handleMute)
	a.mux.HandleFunc("/v1/admin/unmute", a.handleUnmute)
	a.mux.HandleFunc("/v1/admin/assign-faction", a.handleAssignFaction)
	a.mux.HandleFunc("/v1/admin/remove-faction", a.handleRemoveFaction)
	a.mux.HandleFunc("/v1/admin/users", a.handleAdminUsers)
	a.mux.HandleFunc("/v1/admin/audit", a.handleAuditTrail)
	a.mux.HandleFunc("/v1/admin/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/admin/roles/", a.handleRoleResource)

	// owner surface
	a.mux.HandleFunc("/v1/owner/admins", a.handleOwnerAdmins)
	a.mux.HandleFunc("/v1/owner/admin-code", a.handleAdminCode)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "bastion-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "bastion-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
