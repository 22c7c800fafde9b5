package sanction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bastionrp.ru/internal/ids"
)

// Ledger answers "is user X currently banned/muted" and records transitions.
type Ledger struct {
	store Store
	now   func() time.Time
}

// NewLedger wraps a Store. The store may be transaction-scoped; the Ledger
// itself holds no state between calls.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (l *Ledger) WithClock(fn func() time.Time) *Ledger {
	if fn != nil {
		l.now = fn
	}
	return l
}

// Impose inserts a new active sanction row. Prior active rows of the same
// kind are left untouched: re-sanctioning an already sanctioned user is a
// defined, redundant outcome, not an error. A nil duration means permanent
// and is only accepted for bans; mutes default to DefaultMuteDuration.
func (l *Ledger) Impose(ctx context.Context, userID, actorID string, kind Kind, reason string, duration *time.Duration) (*Sanction, error) {
	if kind != KindBan && kind != KindMute {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultReason
	}
	if kind == KindMute && duration == nil {
		d := DefaultMuteDuration
		duration = &d
	}

	now := l.now().UTC()
	s := &Sanction{
		ID:       ids.New(),
		UserID:   userID,
		ActorID:  actorID,
		Kind:     kind,
		Reason:   reason,
		Duration: duration,
		IssuedAt: now,
		Active:   true,
	}
	if duration != nil {
		expires := now.Add(*duration)
		s.ExpiresAt = &expires
	}
	if err := l.store.Insert(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Lift deactivates every currently-active row of the kind for the user and
// returns the count. Zero is a success: lifting is idempotent.
func (l *Ledger) Lift(ctx context.Context, userID string, kind Kind) (int, error) {
	if kind != KindBan && kind != KindMute {
		return 0, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	return l.store.DeactivateAll(ctx, userID, kind)
}

// IsActive evaluates the computed predicate: an active-flagged row exists
// whose expiry is null or in the future.
func (l *Ledger) IsActive(ctx context.Context, userID string, kind Kind) (bool, error) {
	rows, err := l.store.ActiveRows(ctx, userID, kind)
	if err != nil {
		return false, err
	}
	now := l.now().UTC()
	for _, s := range rows {
		if s.ActiveAt(now) {
			return true, nil
		}
	}
	return false, nil
}

// Status reports both ledgers at once.
func (l *Ledger) Status(ctx context.Context, userID string) (Status, error) {
	banned, err := l.IsActive(ctx, userID, KindBan)
	if err != nil {
		return Status{}, err
	}
	muted, err := l.IsActive(ctx, userID, KindMute)
	if err != nil {
		return Status{}, err
	}
	return Status{Banned: banned, Muted: muted}, nil
}

// History returns the user's full sanction history, newest first.
func (l *Ledger) History(ctx context.Context, userID string) ([]Sanction, error) {
	return l.store.History(ctx, userID)
}
