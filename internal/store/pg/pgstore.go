// Package pg implements the store interfaces over PostgreSQL.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"bastionrp.ru/internal/audit"
	"bastionrp.ru/internal/faction"
	"bastionrp.ru/internal/forum"
	"bastionrp.ru/internal/identity"
	"bastionrp.ru/internal/moderation"
	"bastionrp.ru/internal/privilege"
	"bastionrp.ru/internal/roles"
	"bastionrp.ru/internal/sanction"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// querier is the subset of *sql.DB and *sql.Tx the sub-stores use, so the
// same query code runs inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
}

var _ moderation.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle, for tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Pool-bound store facades.

func (s *Store) Users() identity.Store        { return &userStore{q: s.db} }
func (s *Store) Sanctions() sanction.Store    { return &sanctionStore{q: s.db} }
func (s *Store) Admins() privilege.AdminStore { return &adminStore{q: s.db} }
func (s *Store) Codes() privilege.CodeStore   { return &codeStore{q: s.db} }
func (s *Store) Roles() roles.Store           { return &roleStore{q: s.db} }
func (s *Store) Audit() audit.Store           { return &auditStore{q: s.db} }
func (s *Store) Factions() faction.Store      { return &factionStore{q: s.db} }
func (s *Store) Forum() forum.Store           { return &forumStore{q: s.db} }

// WithinTx runs fn against transaction-bound facades. fn returning an error
// rolls everything back; the error is returned unchanged.
func (s *Store) WithinTx(ctx context.Context, fn func(tx moderation.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(pgTx{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type pgTx struct {
	q *sql.Tx
}

func (t pgTx) Sanctions() sanction.Store    { return &sanctionStore{q: t.q} }
func (t pgTx) Admins() privilege.AdminStore { return &adminStore{q: t.q} }
func (t pgTx) Factions() faction.Store      { return &factionStore{q: t.q} }
func (t pgTx) Roles() roles.Store           { return &roleStore{q: t.q} }
func (t pgTx) Audit() audit.Store           { return &auditStore{q: t.q} }

// --- helpers ---

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func emptyIfNull(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
