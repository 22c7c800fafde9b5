package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"bastionrp.ru/internal/forum"
	"bastionrp.ru/internal/identity"
	"bastionrp.ru/internal/moderation"
	"bastionrp.ru/internal/privilege"
	"bastionrp.ru/internal/roles"
	"bastionrp.ru/internal/sanction"
	"bastionrp.ru/internal/store/memory"
	"bastionrp.ru/internal/token"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	store   *memory.Store
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	store := memory.New()
	owner := identity.OwnerMarker{Username: "root"}
	users := identity.NewService(store, owner)
	issuer, err := token.NewIssuer("test-secret")
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	resolver := privilege.NewResolver(store, store, store.Roles(), owner)
	proc := moderation.NewProcessor(store, store.Factions(), resolver, store)
	ledger := sanction.NewLedger(store)

	api := New(ReadyProbe{}, "test", Deps{
		Users:           users,
		Issuer:          issuer,
		Resolver:        resolver,
		Proc:            proc,
		Roles:           roles.NewService(store.Roles()),
		Ledger:          ledger,
		AuditLog:        store,
		Admins:          store,
		Codes:           store,
		Factions:        store.Factions(),
		Forum:           forum.NewService(store, ledger),
		DiscordTokenTTL: 7 * 24 * time.Hour,
		LocalTokenTTL:   30 * 24 * time.Hour,
	})
	api.rateBurst = 1000
	api.ratePerSec = 1000

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		store:   store,
		t:       t,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

// register creates an account and returns its token.
func (c *apiClient) register(username, password string) tokenResponse {
	c.t.Helper()
	resp := c.post("/v1/auth/register", map[string]any{
		"username": username,
		"password": password,
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("register %s: status %d", username, resp.StatusCode)
	}
	return decode[tokenResponse](c.t, resp)
}

func (c *apiClient) authz(tok tokenResponse) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tok.Token}
}

// registerOwner registers the configured owner account ("root").
func (c *apiClient) registerOwner() tokenResponse {
	return c.register("root", "ownerpass123")
}

func TestHealthAndInfo(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: status %d", resp.StatusCode)
	}
	payload := decode[map[string]any](t, resp)
	if payload["service"] != "bastion-api" {
		t.Fatalf("unexpected service: %v", payload["service"])
	}

	resp = api.get("/v1/info", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("info: status %d", resp.StatusCode)
	}
	_ = resp.Body.Close()
}

func TestRegisterLoginAndMe(t *testing.T) {
	api := newTestAPI(t)

	tok := api.register("alice", "password123")
	if tok.User.Username != "alice" || tok.IsOwner || tok.IsAdmin {
		t.Fatalf("unexpected register payload: %+v", tok)
	}

	resp := api.post("/v1/auth/login", map[string]any{
		"username": "alice",
		"password": "password123",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d", resp.StatusCode)
	}
	logged := decode[tokenResponse](t, resp)

	resp = api.get("/v1/auth/me", nil, api.authz(logged))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me: status %d", resp.StatusCode)
	}
	me := decode[map[string]any](t, resp)
	user, _ := me["user"].(map[string]any)
	if user["username"] != "alice" {
		t.Fatalf("unexpected me payload: %v", me)
	}

	// Wrong password yields a generic 401.
	resp = api.post("/v1/auth/login", map[string]any{
		"username": "alice",
		"password": "wrong-password",
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login: status %d", resp.StatusCode)
	}
	_ = resp.Body.Close()
}

func TestOwnerResolvedFromConfiguredUsername(t *testing.T) {
	api := newTestAPI(t)

	owner := api.registerOwner()
	if !owner.IsOwner {
		t.Fatal("configured username must resolve as owner")
	}

	other := api.register("pretender", "password123")
	if other.IsOwner {
		t.Fatal("non-configured account must not be owner")
	}
}

func TestAuthRequiredOnProtectedRoutes(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/v1/auth/me", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("me without token: status %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = api.post("/v1/admin/ban", map[string]any{"username": "x"}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("ban without token: status %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = api.get("/v1/auth/me", nil, map[string]string{"Authorization": "Bearer not-a-token"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token: status %d", resp.StatusCode)
	}
	_ = resp.Body.Close()
}

func TestAdminSurfaceGatedByTokenBits(t *testing.T) {
	api := newTestAPI(t)
	api.registerOwner()
	plain := api.register("alice", "password123")

	resp := api.post("/v1/admin/ban", map[string]any{"username": "root"}, api.authz(plain))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("plain user on admin surface: status %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = api.get("/v1/owner/admins", nil, api.authz(plain))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("plain user on owner surface: status %d", resp.StatusCode)
	}
	_ = resp.Body.Close()
}

func TestBanFlowEndToEnd(t *testing.T) {
	api := newTestAPI(t)
	owner := api.registerOwner()
	api.register("alice", "password123")

	resp := api.post("/v1/admin/ban", map[string]any{
		"username":       "alice",
		"reason":         "spam",
		"duration_hours": 24,
	}, api.authz(owner))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("ban: status %d", resp.StatusCode)
	}
	banned := decode[sanction.Sanction](t, resp)
	if banned.Reason != "spam" || banned.ExpiresAt == nil {
		t.Fatalf("unexpected sanction: %+v", banned)
	}

	// The target's public sanction view reflects the ban.
	resp = api.get("/v1/users/alice/sanctions", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sanctions view: status %d", resp.StatusCode)
	}
	view := decode[map[string]any](t, resp)
	current, _ := view["current"].(map[string]any)
	if current["banned"] != true {
		t.Fatalf("expected banned=true, got %v", view)
	}

	// Audit trail shows the entry with resolved usernames.
	resp = api.get("/v1/admin/audit", nil, api.authz(owner))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audit: status %d", resp.StatusCode)
	}
	trail := decode[map[string]any](t, resp)
	entries, _ := trail["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(entries))
	}
	entry, _ := entries[0].(map[string]any)
	if entry["action"] != "BAN" || entry["target_username"] != "alice" || entry["actor_username"] != "root" {
		t.Fatalf("unexpected audit entry: %v", entry)
	}

	// Unban is idempotent: twice in a row both succeed.
	for i := 0; i < 2; i++ {
		resp = api.post("/v1/admin/unban", map[string]any{"username": "alice"}, api.authz(owner))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("unban #%d: status %d", i+1, resp.StatusCode)
		}
		_ = resp.Body.Close()
	}

	resp = api.get("/v1/users/alice/sanctions", nil, nil)
	view = decode[map[string]any](t, resp)
	current, _ = view["current"].(map[string]any)
	if current["banned"] != false {
		t.Fatalf("expected banned=false after unban, got %v", view)
	}
}

func TestBanUnknownTargetReturns404(t *testing.T) {
	api := newTestAPI(t)
	owner := api.registerOwner()

	resp := api.post("/v1/admin/ban", map[string]any{"username": "ghost"}, api.authz(owner))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", resp.StatusCode)
	}
	_ = resp.Body.Close()
}

func TestAdminAppointmentLifecycle(t *testing.T) {
	api := newTestAPI(t)
	owner := api.registerOwner()
	api.register("alice", "password123")

	resp := api.post("/v1/owner/admins", map[string]any{
		"username": "alice",
		"rank":     "Moderator",
	}, api.authz(owner))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("appoint: status %d", resp.StatusCode)
	}
	rec := decode[privilege.AdminRecord](t, resp)
	if rec.Rank != "Moderator" || !rec.Active {
		t.Fatalf("unexpected record: %+v", rec)
	}

	// A freshly-issued token now carries the admin bit.
	resp = api.post("/v1/auth/login", map[string]any{
		"username": "alice",
		"password": "password123",
	}, nil)
	adminTok := decode[tokenResponse](t, resp)
	if !adminTok.IsAdmin {
		t.Fatal("expected admin bit after appointment")
	}

	// The new admin can moderate.
	api.register("bob", "password123")
	resp = api.post("/v1/admin/mute", map[string]any{
		"username": "bob",
		"reason":   "flood",
	}, api.authz(adminTok))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("mute by appointed admin: status %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	// Admins cannot appoint admins.
	resp = api.post("/v1/owner/admins", map[string]any{
		"username": "bob",
		"rank":     "Moderator",
	}, api.authz(adminTok))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("appoint by admin: status %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	// Removal revokes live moderation power even while the token still
	// carries a stale admin bit.
	resp = api.do(http.MethodDelete, "/v1/owner/admins", map[string]any{"username": "alice"}, api.authz(owner))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("remove: status %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = api.post("/v1/admin/unmute", map[string]any{"username": "bob"}, api.authz(adminTok))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("moderation with stale token bit: status %d, want 403", resp.StatusCode)
	}
	_ = resp.Body.Close()
}

func TestForumSanctionEnforcement(t *testing.T) {
	api := newTestAPI(t)
	owner := api.registerOwner()
	alice := api.register("alice", "password123")

	resp := api.post("/v1/forum/posts", map[string]any{
		"title": "hello",
		"body":  "first post",
	}, api.authz(alice))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("post: status %d", resp.StatusCode)
	}
	post := decode[forum.Post](t, resp)

	// Mute alice; posting and commenting are now refused.
	resp = api.post("/v1/admin/mute", map[string]any{"username": "alice"}, api.authz(owner))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("mute: status %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = api.post("/v1/forum/posts", map[string]any{
		"title": "again",
		"body":  "blocked",
	}, api.authz(alice))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("post while muted: status %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = api.post("/v1/forum/posts/"+post.ID+"/comments", map[string]any{
		"body": "blocked too",
	}, api.authz(alice))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("comment while muted: status %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	// Reading stays public.
	resp = api.get("/v1/forum/posts/"+post.ID, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("read post: status %d", resp.StatusCode)
	}
	_ = resp.Body.Close()
}

func TestRolesAndFactions(t *testing.T) {
	api := newTestAPI(t)
	owner := api.registerOwner()
	api.register("alice", "password123")

	resp := api.post("/v1/admin/roles", map[string]any{
		"name":        "Curator",
		"permissions": []string{"ban", "mute", "mute"},
	}, api.authz(owner))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create role: status %d", resp.StatusCode)
	}
	role := decode[roles.CustomRole](t, resp)
	if role.Color == "" || len(role.Permissions) != 2 {
		t.Fatalf("unexpected role: %+v", role)
	}

	resp = api.do(http.MethodPut, "/v1/admin/roles/"+role.ID,
		map[string]any{"name": "Senior Curator"}, api.authz(owner))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update role: status %d", resp.StatusCode)
	}
	updated := decode[roles.CustomRole](t, resp)
	if updated.Name != "Senior Curator" {
		t.Fatalf("unexpected updated role: %+v", updated)
	}

	resp = api.post("/v1/factions", map[string]any{"name": "City Guard"}, api.authz(owner))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create faction: status %d", resp.StatusCode)
	}
	created := decode[map[string]any](t, resp)
	factionID, _ := created["id"].(string)

	resp = api.post("/v1/admin/assign-faction", map[string]any{
		"username":   "alice",
		"faction_id": factionID,
		"rank":       "Recruit",
	}, api.authz(owner))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("assign: status %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = api.get("/v1/factions/"+factionID, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("faction view: status %d", resp.StatusCode)
	}
	view := decode[map[string]any](t, resp)
	members, _ := view["members"].([]any)
	if len(members) != 1 {
		t.Fatalf("expected one member, got %v", view)
	}

	resp = api.post("/v1/admin/remove-faction", map[string]any{
		"username":   "alice",
		"faction_id": factionID,
	}, api.authz(owner))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("remove: status %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = api.get("/v1/factions/"+factionID, nil, nil)
	view = decode[map[string]any](t, resp)
	members, _ = view["members"].([]any)
	if len(members) != 0 {
		t.Fatalf("expected empty roster, got %v", view)
	}

	// Role and faction changes all land in the audit trail.
	resp = api.get("/v1/admin/audit", nil, api.authz(owner))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audit: status %d", resp.StatusCode)
	}
	trail := decode[map[string]any](t, resp)
	entries, _ := trail["entries"].([]any)
	seen := map[string]map[string]any{}
	for _, raw := range entries {
		e, _ := raw.(map[string]any)
		action, _ := e["action"].(string)
		seen[action] = e
	}
	for _, action := range []string{"ROLE_CREATED", "ROLE_UPDATED", "ASSIGN_FACTION", "REMOVE_FACTION"} {
		e, ok := seen[action]
		if !ok {
			t.Fatalf("missing %s audit entry in %v", action, seen)
		}
		if e["actor_username"] != "root" {
			t.Fatalf("unexpected actor on %s: %v", action, e)
		}
	}
	if seen["ROLE_UPDATED"]["details"] != "Updated role Senior Curator" {
		t.Fatalf("unexpected details: %v", seen["ROLE_UPDATED"])
	}
	if seen["REMOVE_FACTION"]["target_username"] != "alice" {
		t.Fatalf("unexpected target: %v", seen["REMOVE_FACTION"])
	}
}

func TestAdminCodeRotation(t *testing.T) {
	api := newTestAPI(t)
	owner := api.registerOwner()

	resp := api.get("/v1/owner/admin-code", nil, api.authz(owner))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("initial code: status %d", resp.StatusCode)
	}
	initial := decode[map[string]any](t, resp)
	if initial["code"] != "" {
		t.Fatalf("expected empty initial code, got %v", initial["code"])
	}

	resp = api.post("/v1/owner/admin-code", nil, api.authz(owner))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("rotate: status %d", resp.StatusCode)
	}
	rotated := decode[map[string]any](t, resp)
	code, _ := rotated["code"].(string)
	if code == "" {
		t.Fatal("expected non-empty rotated code")
	}

	ok, err := api.store.VerifyCode(context.Background(), code)
	if err != nil || !ok {
		t.Fatalf("VerifyCode: ok=%v err=%v", ok, err)
	}

	// Any authenticated user can check a code, not read it.
	member := api.register("alice", "password123")
	resp = api.post("/v1/auth/verify-admin-code", map[string]any{"code": code}, api.authz(member))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify: status %d", resp.StatusCode)
	}
	verdict := decode[map[string]any](t, resp)
	if verdict["valid"] != true {
		t.Fatalf("expected valid=true, got %v", verdict)
	}

	resp = api.post("/v1/auth/verify-admin-code", map[string]any{"code": "wrong"}, api.authz(member))
	verdict = decode[map[string]any](t, resp)
	if verdict["valid"] != false {
		t.Fatalf("expected valid=false, got %v", verdict)
	}
}

func TestProfileUpdate(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register("alice", "password123")

	resp := api.do(http.MethodPut, "/v1/profile", map[string]any{
		"nickname": "Ally",
		"bio":      "roleplayer",
	}, api.authz(alice))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("profile update: status %d", resp.StatusCode)
	}
	user := decode[identity.User](t, resp)
	if user.Nickname != "Ally" || user.Bio != "roleplayer" {
		t.Fatalf("unexpected user: %+v", user)
	}

	// Public profile view exposes the update, not the password hash.
	resp = api.get("/v1/users/alice", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("public profile: status %d", resp.StatusCode)
	}
	view := decode[map[string]any](t, resp)
	u, _ := view["user"].(map[string]any)
	if u["nickname"] != "Ally" {
		t.Fatalf("unexpected view: %v", view)
	}
	if _, leaked := u["password_hash"]; leaked {
		t.Fatal("password hash must not serialize")
	}
}
