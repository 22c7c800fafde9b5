// Package sanction tracks time-bounded bans and mutes. Expiry is evaluated
// lazily at read time: there is no background sweeper, an expired row with a
// stale active flag still reads as "not currently sanctioned".
package sanction

import (
	"context"
	"errors"
	"time"
)

// Kind discriminates the two sanction ledgers.
type Kind string

const (
	KindBan  Kind = "ban"
	KindMute Kind = "mute"
)

// Defaults observed platform-wide: bans may be permanent, mutes never are.
const (
	DefaultReason       = "No reason provided"
	DefaultMuteDuration = 60 * time.Minute
)

var ErrInvalidKind = errors.New("sanction: invalid kind")

// Sanction is a single ban or mute row. Duration nil means permanent and is
// only legal for bans.
type Sanction struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	ActorID   string         `json:"actor_id"`
	Kind      Kind           `json:"kind"`
	Reason    string         `json:"reason"`
	Duration  *time.Duration `json:"duration,omitempty"`
	IssuedAt  time.Time      `json:"issued_at"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Active    bool           `json:"is_active"`
}

// ActiveAt is the single definition of "currently sanctioned": flagged active
// and either permanent or strictly before expiry.
func (s Sanction) ActiveAt(now time.Time) bool {
	return s.Active && (s.ExpiresAt == nil || now.Before(*s.ExpiresAt))
}

// Permanent reports whether the sanction never expires.
func (s Sanction) Permanent() bool { return s.ExpiresAt == nil }

// Status is a user's current sanction state.
type Status struct {
	Banned bool `json:"banned"`
	Muted  bool `json:"muted"`
}

// Store describes persistence for sanction rows. Stores filter on the active
// flag only; the clock comparison belongs to the Ledger.
type Store interface {
	Insert(ctx context.Context, s *Sanction) error
	// ActiveRows returns rows with active=true for the user and kind,
	// regardless of expiry.
	ActiveRows(ctx context.Context, userID string, kind Kind) ([]Sanction, error)
	// DeactivateAll flips active=false on every active row of the kind for
	// the user and reports how many were flipped.
	DeactivateAll(ctx context.Context, userID string, kind Kind) (int, error)
	// History returns all rows for the user, newest first.
	History(ctx context.Context, userID string) ([]Sanction, error)
}
