// Package audit records moderation actions as an append-only trail and
// mirrors each entry to the structured log.
package audit

import (
	"context"
	"strings"
	"time"
)

// Action names the recordable moderation events. Values are stored verbatim
// and must stay stable across releases.
type Action string

const (
	ActionBan            Action = "BAN"
	ActionUnban          Action = "UNBAN"
	ActionMute           Action = "MUTE"
	ActionUnmute         Action = "UNMUTE"
	ActionAssignFaction  Action = "ASSIGN_FACTION"
	ActionRemoveFaction  Action = "REMOVE_FACTION"
	ActionAdminAppointed Action = "ADMIN_APPOINTED"
	ActionAdminRemoved   Action = "ADMIN_REMOVED"
	ActionRoleCreated    Action = "ROLE_CREATED"
	ActionRoleUpdated    Action = "ROLE_UPDATED"
)

// Entry is a single audit record. Details is a free-form human-readable
// summary, for example "Reason: spam, Duration: 60m".
type Entry struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"actor_id"`
	TargetID  string    `json:"target_id"`
	Action    Action    `json:"action"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// Resolved is an Entry joined with display names for the feed. Usernames may
// be empty when the referenced account has been removed.
type Resolved struct {
	Entry
	ActorUsername  string `json:"actor_username"`
	TargetUsername string `json:"target_username"`
}

// MaxRecent caps the audit feed page size.
const MaxRecent = 100

// Store persists audit entries. Append never updates or deletes.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	// Recent returns up to limit entries, newest first, with usernames
	// resolved where the accounts still exist.
	Recent(ctx context.Context, limit int) ([]Resolved, error)
}

// ClampLimit normalizes a requested feed size into [1, MaxRecent].
func ClampLimit(limit int) int {
	if limit <= 0 {
		return MaxRecent
	}
	if limit > MaxRecent {
		return MaxRecent
	}
	return limit
}

// Valid reports whether the action is one of the known constants.
func (a Action) Valid() bool {
	switch a {
	case ActionBan, ActionUnban, ActionMute, ActionUnmute,
		ActionAssignFaction, ActionRemoveFaction,
		ActionAdminAppointed, ActionAdminRemoved,
		ActionRoleCreated, ActionRoleUpdated:
		return true
	}
	return false
}

// Normalize upper-cases and trims an action string from the wire.
func Normalize(s string) Action {
	return Action(strings.ToUpper(strings.TrimSpace(s)))
}
