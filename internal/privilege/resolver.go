package privilege

import (
	"context"
	"errors"

	"bastionrp.ru/internal/identity"
	"bastionrp.ru/internal/roles"
)

// Resolver computes privilege snapshots from live state.
type Resolver struct {
	users  identity.Store
	admins AdminStore
	roles  roles.Store
	owner  identity.OwnerMarker
}

func NewResolver(users identity.Store, admins AdminStore, roleStore roles.Store, owner identity.OwnerMarker) *Resolver {
	return &Resolver{users: users, admins: admins, roles: roleStore, owner: owner}
}

// Resolve returns the user's current privilege tier. Unknown users propagate
// identity.ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, userID string) (Snapshot, error) {
	user, err := r.users.Find(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	return r.ResolveUser(ctx, user)
}

// ResolveUser computes the snapshot for an already-loaded user record.
func (r *Resolver) ResolveUser(ctx context.Context, user *identity.User) (Snapshot, error) {
	snap := Snapshot{IsOwner: r.owner.Matches(user)}

	rec, err := r.admins.ActiveAdmin(ctx, user.ID)
	if errors.Is(err, ErrNotFound) {
		return snap, nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	snap.AdminRank = rec.Rank

	if rec.RoleID != "" {
		role, err := r.roles.Get(ctx, rec.RoleID)
		switch {
		case errors.Is(err, roles.ErrNotFound):
			// Dangling reference: the role was deleted or deactivated while
			// still linked. Resolve as "no role".
		case err != nil:
			return Snapshot{}, err
		case role.Active:
			snap.Role = &RoleView{Name: role.Name, Color: role.Color, Permissions: role.Permissions}
		}
	}
	return snap, nil
}
