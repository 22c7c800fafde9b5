// Package moderation orchestrates moderation actions: it authorizes the
// actor against live privilege state, applies the mutation, and appends the
// matching audit entry in one transaction.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bastionrp.ru/internal/audit"
	"bastionrp.ru/internal/faction"
	"bastionrp.ru/internal/identity"
	"bastionrp.ru/internal/ids"
	"bastionrp.ru/internal/obs"
	"bastionrp.ru/internal/privilege"
	"bastionrp.ru/internal/roles"
	"bastionrp.ru/internal/sanction"
)

// Processor is the single writer of sanction and admin state. It holds no
// per-request state; every call re-derives privilege from the stores.
type Processor struct {
	users    identity.Store
	factions faction.Store
	resolver *privilege.Resolver
	store    Store
	now      func() time.Time
}

func NewProcessor(users identity.Store, factions faction.Store, resolver *privilege.Resolver, store Store) *Processor {
	return &Processor{
		users:    users,
		factions: factions,
		resolver: resolver,
		store:    store,
		now:      time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (p *Processor) WithClock(fn func() time.Time) *Processor {
	if fn != nil {
		p.now = fn
	}
	return p
}

// authorize re-resolves the actor's privilege from live state. The token's
// cached owner/admin bits are never trusted for moderation.
func (p *Processor) authorize(ctx context.Context, actorID string, ownerOnly bool) (privilege.Snapshot, error) {
	snap, err := p.resolver.Resolve(ctx, actorID)
	if err != nil {
		return privilege.Snapshot{}, err
	}
	if ownerOnly {
		if !snap.IsOwner {
			return privilege.Snapshot{}, ErrForbidden
		}
		return snap, nil
	}
	if !snap.CanModerate() {
		return privilege.Snapshot{}, ErrForbidden
	}
	return snap, nil
}

// target resolves the target user by username. No side effects have occurred
// yet when this fails.
func (p *Processor) target(ctx context.Context, username string) (*identity.User, error) {
	user, err := p.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %q", ErrNotFound, username)
		}
		return nil, err
	}
	return user, nil
}

// Ban imposes a ban on the target. A nil hours pointer means permanent.
func (p *Processor) Ban(ctx context.Context, actorID, username, reason string, hours *int) (*sanction.Sanction, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if hours != nil && *hours <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidInput)
	}
	if _, err := p.authorize(ctx, actorID, false); err != nil {
		return nil, p.observe(audit.ActionBan, err)
	}
	user, err := p.target(ctx, username)
	if err != nil {
		return nil, p.observe(audit.ActionBan, err)
	}

	var duration *time.Duration
	if hours != nil {
		d := time.Duration(*hours) * time.Hour
		duration = &d
	}

	var imposed *sanction.Sanction
	err = p.store.WithinTx(ctx, func(tx Tx) error {
		ledger := sanction.NewLedger(tx.Sanctions()).WithClock(p.now)
		s, err := ledger.Impose(ctx, user.ID, actorID, sanction.KindBan, reason, duration)
		if err != nil {
			return err
		}
		imposed = s
		details := fmt.Sprintf("Reason: %s", s.Reason)
		if hours != nil {
			details = fmt.Sprintf("Reason: %s, Duration: %dh", s.Reason, *hours)
		}
		return p.append(ctx, tx, actorID, user.ID, audit.ActionBan, details)
	})
	if err != nil {
		return nil, p.observe(audit.ActionBan, err)
	}
	p.observe(audit.ActionBan, nil)
	return imposed, nil
}

// Unban lifts every active ban on the target. Lifting zero rows is still a
// success and still audited.
func (p *Processor) Unban(ctx context.Context, actorID, username string) error {
	return p.lift(ctx, actorID, username, sanction.KindBan, audit.ActionUnban, "User unbanned")
}

// Mute imposes a mute on the target. Minutes defaults to 60 when nil.
func (p *Processor) Mute(ctx context.Context, actorID, username, reason string, minutes *int) (*sanction.Sanction, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if minutes != nil && *minutes <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidInput)
	}
	if _, err := p.authorize(ctx, actorID, false); err != nil {
		return nil, p.observe(audit.ActionMute, err)
	}
	user, err := p.target(ctx, username)
	if err != nil {
		return nil, p.observe(audit.ActionMute, err)
	}

	var duration *time.Duration
	if minutes != nil {
		d := time.Duration(*minutes) * time.Minute
		duration = &d
	}

	var imposed *sanction.Sanction
	err = p.store.WithinTx(ctx, func(tx Tx) error {
		ledger := sanction.NewLedger(tx.Sanctions()).WithClock(p.now)
		s, err := ledger.Impose(ctx, user.ID, actorID, sanction.KindMute, reason, duration)
		if err != nil {
			return err
		}
		imposed = s
		details := fmt.Sprintf("Reason: %s, Duration: %dm", s.Reason, int(s.Duration.Minutes()))
		return p.append(ctx, tx, actorID, user.ID, audit.ActionMute, details)
	})
	if err != nil {
		return nil, p.observe(audit.ActionMute, err)
	}
	p.observe(audit.ActionMute, nil)
	return imposed, nil
}

// Unmute lifts every active mute on the target.
func (p *Processor) Unmute(ctx context.Context, actorID, username string) error {
	return p.lift(ctx, actorID, username, sanction.KindMute, audit.ActionUnmute, "User unmuted")
}

func (p *Processor) lift(ctx context.Context, actorID, username string, kind sanction.Kind, action audit.Action, details string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if _, err := p.authorize(ctx, actorID, false); err != nil {
		return p.observe(action, err)
	}
	user, err := p.target(ctx, username)
	if err != nil {
		return p.observe(action, err)
	}

	err = p.store.WithinTx(ctx, func(tx Tx) error {
		ledger := sanction.NewLedger(tx.Sanctions()).WithClock(p.now)
		if _, err := ledger.Lift(ctx, user.ID, kind); err != nil {
			return err
		}
		return p.append(ctx, tx, actorID, user.ID, action, details)
	})
	return p.observe(action, err)
}

// AssignFaction adds the target to a faction. Repeating the assignment is a
// no-op but is still audited when the membership already existed.
func (p *Processor) AssignFaction(ctx context.Context, actorID, username, factionID, rank string) error {
	username = strings.TrimSpace(username)
	factionID = strings.TrimSpace(factionID)
	if username == "" || factionID == "" {
		return fmt.Errorf("%w: username and faction id are required", ErrInvalidInput)
	}
	if _, err := p.authorize(ctx, actorID, false); err != nil {
		return p.observe(audit.ActionAssignFaction, err)
	}
	user, err := p.target(ctx, username)
	if err != nil {
		return p.observe(audit.ActionAssignFaction, err)
	}
	fac, err := p.factions.Get(ctx, factionID)
	if err != nil {
		if errors.Is(err, faction.ErrNotFound) {
			return p.observe(audit.ActionAssignFaction, fmt.Errorf("%w: faction %q", ErrNotFound, factionID))
		}
		return p.observe(audit.ActionAssignFaction, err)
	}

	err = p.store.WithinTx(ctx, func(tx Tx) error {
		m := &faction.Membership{
			UserID:    user.ID,
			FactionID: fac.ID,
			Rank:      strings.TrimSpace(rank),
			JoinedAt:  p.now().UTC(),
		}
		if _, err := tx.Factions().Assign(ctx, m); err != nil {
			return err
		}
		details := fmt.Sprintf("Assigned to faction %s", fac.Name)
		return p.append(ctx, tx, actorID, user.ID, audit.ActionAssignFaction, details)
	})
	return p.observe(audit.ActionAssignFaction, err)
}

// RemoveFaction drops the target's membership in a faction. Removing a user
// who is not a member is a no-op, still audited.
func (p *Processor) RemoveFaction(ctx context.Context, actorID, username, factionID string) error {
	username = strings.TrimSpace(username)
	factionID = strings.TrimSpace(factionID)
	if username == "" || factionID == "" {
		return fmt.Errorf("%w: username and faction id are required", ErrInvalidInput)
	}
	if _, err := p.authorize(ctx, actorID, false); err != nil {
		return p.observe(audit.ActionRemoveFaction, err)
	}
	user, err := p.target(ctx, username)
	if err != nil {
		return p.observe(audit.ActionRemoveFaction, err)
	}
	fac, err := p.factions.Get(ctx, factionID)
	if err != nil {
		if errors.Is(err, faction.ErrNotFound) {
			return p.observe(audit.ActionRemoveFaction, fmt.Errorf("%w: faction %q", ErrNotFound, factionID))
		}
		return p.observe(audit.ActionRemoveFaction, err)
	}

	err = p.store.WithinTx(ctx, func(tx Tx) error {
		if err := tx.Factions().Remove(ctx, user.ID, fac.ID); err != nil && !errors.Is(err, faction.ErrNotFound) {
			return err
		}
		details := fmt.Sprintf("Removed from faction %s", fac.Name)
		return p.append(ctx, tx, actorID, user.ID, audit.ActionRemoveFaction, details)
	})
	return p.observe(audit.ActionRemoveFaction, err)
}

// CreateRole registers a custom role and records who created it.
func (p *Processor) CreateRole(ctx context.Context, actorID string, role roles.CustomRole) (*roles.CustomRole, error) {
	if _, err := p.authorize(ctx, actorID, false); err != nil {
		return nil, p.observe(audit.ActionRoleCreated, err)
	}
	role.CreatedBy = actorID

	var created *roles.CustomRole
	err := p.store.WithinTx(ctx, func(tx Tx) error {
		r, err := roles.NewService(tx.Roles()).Create(ctx, role)
		if err != nil {
			return err
		}
		created = r
		details := fmt.Sprintf("Created role %s", r.Name)
		return p.append(ctx, tx, actorID, "", audit.ActionRoleCreated, details)
	})
	if err != nil {
		return nil, p.observe(audit.ActionRoleCreated, err)
	}
	p.observe(audit.ActionRoleCreated, nil)
	return created, nil
}

// UpdateRole applies role changes and records the edit.
func (p *Processor) UpdateRole(ctx context.Context, actorID, roleID string, upd roles.Update) (*roles.CustomRole, error) {
	if _, err := p.authorize(ctx, actorID, false); err != nil {
		return nil, p.observe(audit.ActionRoleUpdated, err)
	}

	var updated *roles.CustomRole
	err := p.store.WithinTx(ctx, func(tx Tx) error {
		r, err := roles.NewService(tx.Roles()).Update(ctx, roleID, upd)
		if err != nil {
			return err
		}
		updated = r
		details := fmt.Sprintf("Updated role %s", r.Name)
		return p.append(ctx, tx, actorID, "", audit.ActionRoleUpdated, details)
	})
	if err != nil {
		return nil, p.observe(audit.ActionRoleUpdated, err)
	}
	p.observe(audit.ActionRoleUpdated, nil)
	return updated, nil
}

// AppointAdmin creates or reactivates the target's admin record. Owner only.
func (p *Processor) AppointAdmin(ctx context.Context, actorID, username, rank, roleID string) (*privilege.AdminRecord, error) {
	username = strings.TrimSpace(username)
	rank = strings.TrimSpace(rank)
	if username == "" || rank == "" {
		return nil, fmt.Errorf("%w: username and rank are required", ErrInvalidInput)
	}
	if _, err := p.authorize(ctx, actorID, true); err != nil {
		return nil, p.observe(audit.ActionAdminAppointed, err)
	}
	user, err := p.target(ctx, username)
	if err != nil {
		return nil, p.observe(audit.ActionAdminAppointed, err)
	}

	rec := &privilege.AdminRecord{
		ID:          ids.New(),
		UserID:      user.ID,
		Rank:        rank,
		RoleID:      strings.TrimSpace(roleID),
		AppointedBy: actorID,
		AppointedAt: p.now().UTC(),
		Active:      true,
	}
	err = p.store.WithinTx(ctx, func(tx Tx) error {
		if err := tx.Admins().Upsert(ctx, rec); err != nil {
			return err
		}
		details := fmt.Sprintf("Appointed as %s", rank)
		return p.append(ctx, tx, actorID, user.ID, audit.ActionAdminAppointed, details)
	})
	if err != nil {
		return nil, p.observe(audit.ActionAdminAppointed, err)
	}
	p.observe(audit.ActionAdminAppointed, nil)
	return rec, nil
}

// RemoveAdmin deactivates the target's active admin record. Owner only.
// Removing a user with no active record is a no-op, still audited.
func (p *Processor) RemoveAdmin(ctx context.Context, actorID, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if _, err := p.authorize(ctx, actorID, true); err != nil {
		return p.observe(audit.ActionAdminRemoved, err)
	}
	user, err := p.target(ctx, username)
	if err != nil {
		return p.observe(audit.ActionAdminRemoved, err)
	}

	err = p.store.WithinTx(ctx, func(tx Tx) error {
		rec, err := tx.Admins().ActiveAdmin(ctx, user.ID)
		if err != nil {
			if errors.Is(err, privilege.ErrNotFound) {
				return p.append(ctx, tx, actorID, user.ID, audit.ActionAdminRemoved, "Admin privileges removed")
			}
			return err
		}
		if err := tx.Admins().Deactivate(ctx, rec.ID); err != nil {
			return err
		}
		return p.append(ctx, tx, actorID, user.ID, audit.ActionAdminRemoved, "Admin privileges removed")
	})
	return p.observe(audit.ActionAdminRemoved, err)
}

func (p *Processor) append(ctx context.Context, tx Tx, actorID, targetID string, action audit.Action, details string) error {
	entry := &audit.Entry{
		ID:        ids.New(),
		ActorID:   actorID,
		TargetID:  targetID,
		Action:    action,
		Details:   details,
		CreatedAt: p.now().UTC(),
	}
	if err := tx.Audit().Append(ctx, entry); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "moderation."+strings.ToLower(string(action)), map[string]any{
		"actor_id":  actorID,
		"target_id": targetID,
		"details":   details,
	})
	return nil
}

// observe records the action outcome metric and passes the error through.
func (p *Processor) observe(action audit.Action, err error) error {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrForbidden):
		outcome = "forbidden"
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	default:
		outcome = "error"
	}
	obs.ObserveModerationAction(string(action), outcome)
	return err
}
