// Package roles manages the custom role catalog: named, colored permission
// bundles that can be attached to admin appointments.
package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("roles: not found")
	ErrConflict     = errors.New("roles: already exists")
	ErrInvalidInput = errors.New("roles: invalid input")
)

const defaultColor = "#999999"

// CustomRole is a capability bundle referenced by admin appointments.
// Deactivating or editing a role never cascades to admin records; a dangling
// reference resolves as "no role" downstream.
type CustomRole struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Color       string    `json:"color"`
	Permissions []string  `json:"permissions"`
	Icon        string    `json:"icon,omitempty"`
	AdminRole   bool      `json:"is_admin_role"`
	CreatedBy   string    `json:"created_by"`
	Active      bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Update carries optional role changes. Nil means "leave as is".
type Update struct {
	Name        *string
	Color       *string
	Icon        *string
	Permissions []string
	AdminRole   *bool
	Active      *bool
}

// Store describes persistence for custom roles.
type Store interface {
	Create(ctx context.Context, role *CustomRole) error
	Get(ctx context.Context, id string) (*CustomRole, error)
	List(ctx context.Context) ([]CustomRole, error)
	Update(ctx context.Context, id string, upd Update) (*CustomRole, error)
}

// Service validates and normalizes role operations.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create registers a new custom role.
func (s *Service) Create(ctx context.Context, role CustomRole) (*CustomRole, error) {
	role.Name = strings.TrimSpace(role.Name)
	if role.Name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role.Color = strings.TrimSpace(role.Color)
	if role.Color == "" {
		role.Color = defaultColor
	}
	role.Permissions = dedupe(role.Permissions)
	role.Active = true
	if err := s.store.Create(ctx, &role); err != nil {
		return nil, err
	}
	return &role, nil
}

// Get returns a role by id.
func (s *Service) Get(ctx context.Context, id string) (*CustomRole, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	return s.store.Get(ctx, id)
}

// List returns all roles, newest first.
func (s *Service) List(ctx context.Context) ([]CustomRole, error) {
	return s.store.List(ctx)
}

// Update applies role changes.
func (s *Service) Update(ctx context.Context, id string, upd Update) (*CustomRole, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Color != nil {
		color := strings.TrimSpace(*upd.Color)
		if color == "" {
			color = defaultColor
		}
		upd.Color = &color
	}
	if upd.Permissions != nil {
		upd.Permissions = dedupe(upd.Permissions)
	}
	return s.store.Update(ctx, id, upd)
}

func dedupe(values []string) []string {
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
