// Package faction models the platform's factions and their member rosters.
package faction

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("faction: not found")
	ErrConflict = errors.New("faction: already exists")
)

// Faction is a named group users can be assigned to.
type Faction struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Tag         string    `json:"tag,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Membership links a user to a faction. A user holds at most one membership
// per faction; assignment is idempotent.
type Membership struct {
	UserID    string    `json:"user_id"`
	FactionID string    `json:"faction_id"`
	Rank      string    `json:"rank,omitempty"`
	General   bool      `json:"is_general"`
	JoinedAt  time.Time `json:"joined_at"`
}

// Member is a membership joined with display fields for rosters.
type Member struct {
	Membership
	Username  string `json:"username"`
	Nickname  string `json:"nickname,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Store persists factions and memberships.
type Store interface {
	Create(ctx context.Context, f *Faction) error
	Get(ctx context.Context, id string) (*Faction, error)
	List(ctx context.Context) ([]Faction, error)
	// Assign adds the user to the faction and reports whether a new row was
	// inserted. A repeated assignment returns false with no error.
	Assign(ctx context.Context, m *Membership) (bool, error)
	Remove(ctx context.Context, userID, factionID string) error
	Roster(ctx context.Context, factionID string) ([]Member, error)
	MembershipsOf(ctx context.Context, userID string) ([]Membership, error)
}
