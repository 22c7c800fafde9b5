package moderation

import (
	"context"

	"bastionrp.ru/internal/audit"
	"bastionrp.ru/internal/faction"
	"bastionrp.ru/internal/privilege"
	"bastionrp.ru/internal/roles"
	"bastionrp.ru/internal/sanction"
)

// Tx exposes the transaction-scoped stores the Processor mutates. Every write
// made through a Tx commits or rolls back as one unit.
type Tx interface {
	Sanctions() sanction.Store
	Admins() privilege.AdminStore
	Factions() faction.Store
	Roles() roles.Store
	Audit() audit.Store
}

// Store opens transactional units of work. If fn returns an error the unit is
// rolled back and the error is returned unchanged; otherwise it commits.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}
