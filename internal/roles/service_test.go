package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type memStore struct {
	Store
	roles map[string]*CustomRole
	next  int
}

func newMemStore() *memStore { return &memStore{roles: make(map[string]*CustomRole)} }

func (m *memStore) Create(ctx context.Context, role *CustomRole) error {
	for _, r := range m.roles {
		if strings.EqualFold(r.Name, role.Name) {
			return ErrConflict
		}
	}
	m.next++
	role.ID = fmt.Sprintf("r-%03d", m.next)
	m.roles[role.ID] = role
	return nil
}

func (m *memStore) Get(ctx context.Context, id string) (*CustomRole, error) {
	if r, ok := m.roles[id]; ok {
		return r, nil
	}
	return nil, ErrNotFound
}

func (m *memStore) Update(ctx context.Context, id string, upd Update) (*CustomRole, error) {
	r, ok := m.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Name != nil {
		r.Name = *upd.Name
	}
	if upd.Color != nil {
		r.Color = *upd.Color
	}
	if upd.Permissions != nil {
		r.Permissions = upd.Permissions
	}
	if upd.Active != nil {
		r.Active = *upd.Active
	}
	return r, nil
}

func TestCreateAppliesDefaults(t *testing.T) {
	svc := NewService(newMemStore())
	ctx := context.Background()

	role, err := svc.Create(ctx, CustomRole{
		Name:        "  Curator  ",
		Permissions: []string{"ban", " mute ", "ban", ""},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if role.Name != "Curator" {
		t.Fatalf("name = %q", role.Name)
	}
	if role.Color != defaultColor {
		t.Fatalf("color = %q, want default", role.Color)
	}
	if len(role.Permissions) != 2 || role.Permissions[0] != "ban" || role.Permissions[1] != "mute" {
		t.Fatalf("permissions = %v", role.Permissions)
	}
	if !role.Active {
		t.Fatal("new role must be active")
	}
}

func TestCreateRejectsBlankName(t *testing.T) {
	svc := NewService(newMemStore())

	if _, err := svc.Create(context.Background(), CustomRole{Name: "   "}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCreateDuplicateNameConflicts(t *testing.T) {
	svc := NewService(newMemStore())
	ctx := context.Background()

	if _, err := svc.Create(ctx, CustomRole{Name: "Curator"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := svc.Create(ctx, CustomRole{Name: "curator"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUpdateNormalizesFields(t *testing.T) {
	svc := NewService(newMemStore())
	ctx := context.Background()

	role, err := svc.Create(ctx, CustomRole{Name: "Curator", Color: "#112233"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	blankColor := "  "
	updated, err := svc.Update(ctx, role.ID, Update{
		Color:       &blankColor,
		Permissions: []string{"mute", "mute", "kick"},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Color != defaultColor {
		t.Fatalf("blank color must fall back to default, got %q", updated.Color)
	}
	if len(updated.Permissions) != 2 {
		t.Fatalf("permissions = %v", updated.Permissions)
	}

	blankName := " "
	if _, err := svc.Update(ctx, role.ID, Update{Name: &blankName}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
