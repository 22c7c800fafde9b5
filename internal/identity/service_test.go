package identity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type memStore struct {
	Store
	byID       map[string]*User
	byUsername map[string]*User
	byDiscord  map[string]*User
}

func newMemStore() *memStore {
	return &memStore{
		byID:       make(map[string]*User),
		byUsername: make(map[string]*User),
		byDiscord:  make(map[string]*User),
	}
}

func (m *memStore) Create(ctx context.Context, u *User) error {
	if _, ok := m.byUsername[strings.ToLower(u.Username)]; ok {
		return ErrConflict
	}
	m.byID[u.ID] = u
	m.byUsername[strings.ToLower(u.Username)] = u
	return nil
}

func (m *memStore) Find(ctx context.Context, id string) (*User, error) {
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, ErrNotFound
}

func (m *memStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	if u, ok := m.byUsername[strings.ToLower(username)]; ok {
		return u, nil
	}
	return nil, ErrNotFound
}

func (m *memStore) UpsertDiscord(ctx context.Context, p DiscordProfile) (*User, error) {
	if u, ok := m.byDiscord[p.ID]; ok {
		u.Username = p.Username
		u.AvatarURL = p.Avatar
		return u, nil
	}
	u := &User{
		ID:        "u-" + p.ID,
		Username:  p.Username,
		DiscordID: p.ID,
		AvatarURL: p.Avatar,
	}
	m.byDiscord[p.ID] = u
	m.byID[u.ID] = u
	m.byUsername[strings.ToLower(u.Username)] = u
	return u, nil
}

func (m *memStore) TouchLogin(ctx context.Context, id string) error {
	u, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.LastLoginAt = time.Now().UTC()
	return nil
}

func newTestService() (*Service, *memStore) {
	store := newMemStore()
	svc := NewService(store, OwnerMarker{Username: "root"})
	return svc, store
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cases := []struct {
		name     string
		username string
		password string
	}{
		{"short username", "ab", "password123"},
		{"long username", strings.Repeat("a", 33), "password123"},
		{"illegal chars", "bad name!", "password123"},
		{"blank username", "   ", "password123"},
		{"short password", "alice", "seven77"},
		// bcrypt rejects inputs over 72 bytes; the limit is enforced up front.
		{"long password", "alice", strings.Repeat("p", 73)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, tc.username, tc.password); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	u, err := svc.Register(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.PasswordHash == "" || u.PasswordHash == "password123" {
		t.Fatal("password must be stored hashed")
	}
	if !u.Local() {
		t.Fatal("credential account must be local")
	}

	logged, err := svc.Login(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if logged.ID != u.ID {
		t.Fatalf("logged in as %s, want %s", logged.ID, u.ID)
	}
	if logged.LastLoginAt.IsZero() {
		t.Fatal("login must touch last_login_at")
	}
}

func TestDuplicateUsernameRejected(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "password123"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := svc.Register(ctx, "alice", "password456"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

// Every login failure collapses into the same error so callers cannot probe
// which usernames exist.
func TestLoginFailuresAreUniform(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "password123"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := store.UpsertDiscord(ctx, DiscordProfile{ID: "d1", Username: "discordian"}); err != nil {
		t.Fatalf("upsert discord: %v", err)
	}

	cases := []struct {
		name     string
		username string
		password string
	}{
		{"unknown user", "nobody", "password123"},
		{"wrong password", "alice", "wrong-wrong"},
		{"blank password", "alice", ""},
		{"discord account has no password", "discordian", "password123"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Login(ctx, tc.username, tc.password); !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
		})
	}
}

func TestDiscordLoginRequiresProfile(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.DiscordLogin(ctx, DiscordProfile{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	u, err := svc.DiscordLogin(ctx, DiscordProfile{ID: "42", Username: "zed"})
	if err != nil {
		t.Fatalf("DiscordLogin: %v", err)
	}
	if u.Local() {
		t.Fatal("discord account must not be local")
	}
}

func TestOwnerMarkerMatching(t *testing.T) {
	svc, _ := newTestService()

	if !svc.IsOwner(&User{Username: "root"}) {
		t.Fatal("configured username must match owner")
	}
	if !svc.IsOwner(&User{Username: "ROOT"}) {
		t.Fatal("owner username match is case-insensitive")
	}
	if svc.IsOwner(&User{Username: "alice"}) {
		t.Fatal("other accounts are not owner")
	}

	byDiscord := NewService(newMemStore(), OwnerMarker{DiscordID: "999"})
	if !byDiscord.IsOwner(&User{Username: "whoever", DiscordID: "999"}) {
		t.Fatal("configured discord id must match owner")
	}
}

func TestUpdateProfileRejectsBlankNickname(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	blank := "   "
	if _, err := svc.UpdateProfile(ctx, "some-id", ProfileUpdate{Nickname: &blank}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
