package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"bastionrp.ru/internal/ids"
	"bastionrp.ru/internal/roles"
)

type roleStore struct {
	q querier
}

var _ roles.Store = (*roleStore)(nil)

const roleColumns = `id, name, color, permissions, coalesce(icon,''), is_admin_role,
	created_by, is_active, created_at, updated_at`

func scanRole(row interface{ Scan(...any) error }) (*roles.CustomRole, error) {
	var role roles.CustomRole
	var rawPerms []byte
	err := row.Scan(&role.ID, &role.Name, &role.Color, &rawPerms, &role.Icon,
		&role.AdminRole, &role.CreatedBy, &role.Active, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(rawPerms) > 0 {
		if err := json.Unmarshal(rawPerms, &role.Permissions); err != nil {
			return nil, fmt.Errorf("decode permissions: %w", err)
		}
	}
	return &role, nil
}

func (s *roleStore) Create(ctx context.Context, role *roles.CustomRole) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}
	created, err := scanRole(s.q.QueryRowContext(ctx, `
		insert into custom_roles (id, name, color, permissions, icon, is_admin_role, created_by, is_active, created_at, updated_at)
		values ($1, $2, $3, $4, nullif($5,''), $6, $7, true, now(), now())
		returning `+roleColumns,
		role.ID, role.Name, role.Color, perms, role.Icon, role.AdminRole, role.CreatedBy))
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return roles.ErrConflict
		}
		return err
	}
	*role = *created
	return nil
}

func (s *roleStore) Get(ctx context.Context, id string) (*roles.CustomRole, error) {
	role, err := scanRole(s.q.QueryRowContext(ctx,
		`select `+roleColumns+` from custom_roles where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, roles.ErrNotFound
	}
	return role, err
}

func (s *roleStore) List(ctx context.Context) ([]roles.CustomRole, error) {
	rows, err := s.q.QueryContext(ctx,
		`select `+roleColumns+` from custom_roles order by created_at desc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []roles.CustomRole
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *roleStore) Update(ctx context.Context, id string, upd roles.Update) (*roles.CustomRole, error) {
	var (
		setClauses []string
		args       []any
		idx        = 1
	)
	addClause := func(clause string, value any) {
		setClauses = append(setClauses, fmt.Sprintf(clause, idx))
		args = append(args, value)
		idx++
	}
	if upd.Name != nil {
		addClause("name = $%d", *upd.Name)
	}
	if upd.Color != nil {
		addClause("color = $%d", *upd.Color)
	}
	if upd.Icon != nil {
		addClause("icon = nullif($%d,'')", *upd.Icon)
	}
	if upd.Permissions != nil {
		perms, err := json.Marshal(upd.Permissions)
		if err != nil {
			return nil, fmt.Errorf("marshal permissions: %w", err)
		}
		addClause("permissions = $%d", perms)
	}
	if upd.AdminRole != nil {
		addClause("is_admin_role = $%d", *upd.AdminRole)
	}
	if upd.Active != nil {
		addClause("is_active = $%d", *upd.Active)
	}
	if len(setClauses) == 0 {
		return s.Get(ctx, id)
	}
	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, id)

	query := fmt.Sprintf(`update custom_roles set %s where id = $%d returning %s`,
		strings.Join(setClauses, ", "), idx, roleColumns)
	role, err := scanRole(s.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, roles.ErrNotFound
	}
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return nil, roles.ErrConflict
		}
		return nil, err
	}
	return role, nil
}
