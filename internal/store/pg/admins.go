package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"bastionrp.ru/internal/ids"
	"bastionrp.ru/internal/privilege"
)

type adminStore struct {
	q querier
}

var _ privilege.AdminStore = (*adminStore)(nil)

func (s *adminStore) ActiveAdmin(ctx context.Context, userID string) (*privilege.AdminRecord, error) {
	var rec privilege.AdminRecord
	var roleID sql.NullString
	err := s.q.QueryRowContext(ctx, `
		select id, user_id, admin_rank, role_id, appointed_by, appointed_at, is_active
		from admins
		where user_id = $1 and is_active
	`, userID).Scan(&rec.ID, &rec.UserID, &rec.Rank, &roleID, &rec.AppointedBy, &rec.AppointedAt, &rec.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, privilege.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.RoleID = emptyIfNull(roleID)
	return &rec, nil
}

func (s *adminStore) Upsert(ctx context.Context, rec *privilege.AdminRecord) error {
	// Re-appointing updates rank/role and reactivates the existing record.
	return s.q.QueryRowContext(ctx, `
		insert into admins (id, user_id, admin_rank, role_id, appointed_by, appointed_at, is_active)
		values ($1, $2, $3, nullif($4,''), $5, $6, true)
		on conflict (user_id) do update set
			admin_rank = excluded.admin_rank,
			role_id = excluded.role_id,
			appointed_by = excluded.appointed_by,
			appointed_at = excluded.appointed_at,
			is_active = true
		returning id
	`, rec.ID, rec.UserID, rec.Rank, rec.RoleID, rec.AppointedBy, rec.AppointedAt).Scan(&rec.ID)
}

func (s *adminStore) Deactivate(ctx context.Context, adminID string) error {
	res, err := s.q.ExecContext(ctx,
		`update admins set is_active = false where id = $1`, adminID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return privilege.ErrNotFound
	}
	return nil
}

func (s *adminStore) Roster(ctx context.Context) ([]privilege.RosterEntry, error) {
	rows, err := s.q.QueryContext(ctx, `
		select a.id, a.user_id, a.admin_rank, coalesce(a.role_id,''), a.appointed_by, a.appointed_at, a.is_active,
			u.username, coalesce(u.nickname,''), coalesce(u.avatar_url,''),
			r.name, r.color, r.permissions
		from admins a
		join users u on u.id = a.user_id
		left join custom_roles r on r.id = a.role_id and r.is_active
		where a.is_active
		order by a.appointed_at desc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []privilege.RosterEntry
	for rows.Next() {
		var (
			entry     privilege.RosterEntry
			roleName  sql.NullString
			roleColor sql.NullString
			rawPerms  []byte
		)
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Rank, &entry.RoleID,
			&entry.AppointedBy, &entry.AppointedAt, &entry.Active,
			&entry.Username, &entry.Nickname, &entry.AvatarURL,
			&roleName, &roleColor, &rawPerms); err != nil {
			return nil, err
		}
		if roleName.Valid {
			view := privilege.RoleView{Name: roleName.String, Color: roleColor.String}
			if len(rawPerms) > 0 {
				if err := json.Unmarshal(rawPerms, &view.Permissions); err != nil {
					return nil, err
				}
			}
			entry.Role = &view
		}
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// codeStore manages the rotating admin access code.
type codeStore struct {
	q querier
}

var _ privilege.CodeStore = (*codeStore)(nil)

func (s *codeStore) Rotate(ctx context.Context, code string) error {
	if _, err := s.q.ExecContext(ctx,
		`update admin_codes set is_active = false where is_active`); err != nil {
		return err
	}
	_, err := s.q.ExecContext(ctx, `
		insert into admin_codes (id, code, is_active, created_at)
		values ($1, $2, true, now())
	`, ids.New(), code)
	return err
}

func (s *codeStore) ActiveCode(ctx context.Context) (string, error) {
	var code string
	err := s.q.QueryRowContext(ctx, `
		select code from admin_codes
		where is_active
		order by created_at desc
		limit 1
	`).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", privilege.ErrNotFound
	}
	return code, err
}

func (s *codeStore) VerifyCode(ctx context.Context, code string) (bool, error) {
	var ok bool
	err := s.q.QueryRowContext(ctx,
		`select exists (select 1 from admin_codes where code = $1 and is_active)`, code).Scan(&ok)
	return ok, err
}
