// Package privilege computes a user's effective privilege tier from live
// store state: owner by configuration match, admin by the active appointment
// record, custom role merged in when present.
package privilege

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("privilege: not found")

// AdminRecord is a per-user privilege grant. At most one active record exists
// per user; re-appointing updates and reactivates instead of duplicating, and
// removal deactivates without deleting history.
type AdminRecord struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Rank        string    `json:"admin_rank"`
	RoleID      string    `json:"role_id,omitempty"`
	AppointedBy string    `json:"appointed_by"`
	AppointedAt time.Time `json:"appointed_at"`
	Active      bool      `json:"is_active"`
}

// RosterEntry is an owner-panel listing row: the appointment joined with the
// user and, when resolvable, the custom role.
type RosterEntry struct {
	AdminRecord
	Username  string    `json:"username"`
	Nickname  string    `json:"nickname,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Role      *RoleView `json:"role,omitempty"`
}

// AdminStore describes persistence for admin appointments.
type AdminStore interface {
	// ActiveAdmin returns the active record for the user, or ErrNotFound.
	ActiveAdmin(ctx context.Context, userID string) (*AdminRecord, error)
	// Upsert creates the record, or updates rank/role and reactivates the
	// existing one for the same user.
	Upsert(ctx context.Context, rec *AdminRecord) error
	// Deactivate sets active=false on the record; history is retained.
	Deactivate(ctx context.Context, adminID string) error
	Roster(ctx context.Context) ([]RosterEntry, error)
}

// CodeStore manages the rotating admin access code.
type CodeStore interface {
	// Rotate deactivates the current code and installs the new one.
	Rotate(ctx context.Context, code string) error
	ActiveCode(ctx context.Context) (string, error)
	VerifyCode(ctx context.Context, code string) (bool, error)
}

// RoleView is the resolved custom role attached to a snapshot.
type RoleView struct {
	Name        string   `json:"name"`
	Color       string   `json:"color"`
	Permissions []string `json:"permissions,omitempty"`
}

// Snapshot is a user's effective privilege at a point in time.
type Snapshot struct {
	IsOwner   bool      `json:"is_owner"`
	AdminRank string    `json:"admin_rank,omitempty"`
	Role      *RoleView `json:"role,omitempty"`
}

// IsAdmin reports whether the user holds an active admin appointment.
func (s Snapshot) IsAdmin() bool { return s.AdminRank != "" }

// CanModerate reports whether the user may perform moderation actions.
func (s Snapshot) CanModerate() bool { return s.IsOwner || s.IsAdmin() }
