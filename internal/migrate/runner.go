// Package migrate applies plain-SQL schema migrations and seed files.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const ledgerTable = "schema_history"

const (
	kindMigration = "migration"
	kindSeed      = "seed"
)

// Runner executes .up.sql/.down.sql migration pairs and one-shot seed files
// from disk, recording what ran in a single bookkeeping table.
type Runner struct {
	db            *sql.DB
	migrationsDir string
	seedsDir      string
}

func NewRunner(db *sql.DB, migrationsDir, seedsDir string) *Runner {
	return &Runner{db: db, migrationsDir: migrationsDir, seedsDir: seedsDir}
}

// Apply runs every pending .up.sql file in lexical order.
func (r *Runner) Apply(ctx context.Context) error {
	if err := r.ensureLedger(ctx); err != nil {
		return err
	}
	return r.applyPending(ctx, r.migrationsDir, ".up.sql", kindMigration)
}

// Seed runs every pending seed file. Seeds never re-run.
func (r *Runner) Seed(ctx context.Context) error {
	if err := r.ensureLedger(ctx); err != nil {
		return err
	}
	return r.applyPending(ctx, r.seedsDir, ".sql", kindSeed)
}

// RollbackLast reverts the most recently applied migration using its
// .down.sql counterpart.
func (r *Runner) RollbackLast(ctx context.Context) error {
	if err := r.ensureLedger(ctx); err != nil {
		return err
	}
	applied, err := r.applied(ctx, kindMigration)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return errors.New("nothing to roll back")
	}
	last := applied[len(applied)-1]
	down := filepath.Join(r.migrationsDir, strings.TrimSuffix(last, ".up.sql")+".down.sql")
	if _, err := os.Stat(down); err != nil {
		return fmt.Errorf("no down file for %s", last)
	}
	if err := r.runFile(ctx, down); err != nil {
		return fmt.Errorf("roll back %s: %w", last, err)
	}
	_, err = r.db.ExecContext(ctx,
		`delete from `+ledgerTable+` where kind = $1 and name = $2`, kindMigration, last)
	return err
}

// Applied lists applied migration names in order.
func (r *Runner) Applied(ctx context.Context) ([]string, error) {
	if err := r.ensureLedger(ctx); err != nil {
		return nil, err
	}
	return r.applied(ctx, kindMigration)
}

func (r *Runner) applyPending(ctx context.Context, dir, suffix, kind string) error {
	names, err := listSQL(dir, suffix)
	if err != nil {
		return err
	}
	done, err := r.applied(ctx, kind)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(done))
	for _, n := range done {
		seen[n] = true
	}
	for _, name := range names {
		if seen[name] {
			continue
		}
		if err := r.runFile(ctx, filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		if _, err := r.db.ExecContext(ctx,
			`insert into `+ledgerTable+`(kind, name) values ($1, $2)`, kind, name); err != nil {
			return err
		}
	}
	return nil
}

// runFile executes one SQL file inside a single transaction.
func (r *Runner) runFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(raw)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Runner) ensureLedger(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		create table if not exists `+ledgerTable+` (
			kind       text not null,
			name       text not null,
			applied_at timestamptz not null default now(),
			primary key (kind, name)
		)`)
	return err
}

func (r *Runner) applied(ctx context.Context, kind string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`select name from `+ledgerTable+` where kind = $1 order by applied_at, name`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func listSQL(dir, suffix string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// splitStatements cuts a file into statements on semicolons, skipping ones
// inside single-quoted or dollar-quoted strings and line comments. Good
// enough for migration files; not a general SQL parser.
func splitStatements(src string) []string {
	var (
		stmts   []string
		current strings.Builder
		i       int
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			stmts = append(stmts, s)
		}
		current.Reset()
	}
	for i < len(src) {
		switch {
		case src[i] == '\'':
			end := strings.IndexByte(src[i+1:], '\'')
			if end < 0 {
				current.WriteString(src[i:])
				i = len(src)
				continue
			}
			current.WriteString(src[i : i+end+2])
			i += end + 2
		case src[i] == '$':
			tag := dollarTag(src[i:])
			if tag == "" {
				current.WriteByte(src[i])
				i++
				continue
			}
			end := strings.Index(src[i+len(tag):], tag)
			if end < 0 {
				current.WriteString(src[i:])
				i = len(src)
				continue
			}
			current.WriteString(src[i : i+len(tag)+end+len(tag)])
			i += len(tag) + end + len(tag)
		case strings.HasPrefix(src[i:], "--"):
			nl := strings.IndexByte(src[i:], '\n')
			if nl < 0 {
				i = len(src)
				continue
			}
			i += nl
		case src[i] == ';':
			flush()
			i++
		default:
			current.WriteByte(src[i])
			i++
		}
	}
	flush()
	return stmts
}

// dollarTag returns the $tag$ opener at the start of s, or "".
func dollarTag(s string) string {
	if len(s) < 2 || s[0] != '$' {
		return ""
	}
	for j := 1; j < len(s); j++ {
		c := s[j]
		if c == '$' {
			return s[:j+1]
		}
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return ""
		}
	}
	return ""
}
