package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"bastionrp.ru/internal/identity"
	"bastionrp.ru/internal/ids"
)

type userStore struct {
	q querier
}

var _ identity.Store = (*userStore)(nil)

const userColumns = `id, username, coalesce(password_hash,''), coalesce(discord_id,''),
	coalesce(discord_discriminator,''), coalesce(nickname,''), coalesce(avatar_url,''),
	coalesce(bio,''), coalesce(status_text,''), coalesce(discord_link,''),
	created_at, updated_at, last_login_at`

func scanUser(row interface{ Scan(...any) error }) (*identity.User, error) {
	var u identity.User
	var lastLogin sql.NullTime
	err := row.Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.DiscordID,
		&u.DiscordDiscriminator, &u.Nickname, &u.AvatarURL,
		&u.Bio, &u.StatusText, &u.DiscordLink,
		&u.CreatedAt, &u.UpdatedAt, &lastLogin,
	)
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		u.LastLoginAt = lastLogin.Time
	}
	return &u, nil
}

func (s *userStore) Create(ctx context.Context, u *identity.User) error {
	_, err := s.q.ExecContext(ctx, `
		insert into users (id, username, password_hash, discord_id, discord_discriminator,
			nickname, avatar_url, bio, status_text, discord_link, created_at, updated_at)
		values ($1, $2, nullif($3,''), nullif($4,''), nullif($5,''),
			nullif($6,''), nullif($7,''), nullif($8,''), nullif($9,''), nullif($10,''), now(), now())
	`, u.ID, u.Username, u.PasswordHash, u.DiscordID, u.DiscordDiscriminator,
		u.Nickname, u.AvatarURL, u.Bio, u.StatusText, u.DiscordLink)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return identity.ErrConflict
		}
		return err
	}
	return nil
}

func (s *userStore) Find(ctx context.Context, id string) (*identity.User, error) {
	u, err := scanUser(s.q.QueryRowContext(ctx,
		`select `+userColumns+` from users where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	return u, err
}

func (s *userStore) FindByUsername(ctx context.Context, username string) (*identity.User, error) {
	u, err := scanUser(s.q.QueryRowContext(ctx,
		`select `+userColumns+` from users where lower(username) = lower($1)`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	return u, err
}

func (s *userStore) UpsertDiscord(ctx context.Context, profile identity.DiscordProfile) (*identity.User, error) {
	u, err := scanUser(s.q.QueryRowContext(ctx, `
		insert into users (id, username, discord_id, discord_discriminator, avatar_url,
			created_at, updated_at, last_login_at)
		values ($1, $2, $3, nullif($4,''), nullif($5,''), now(), now(), now())
		on conflict (discord_id) do update set
			username = excluded.username,
			discord_discriminator = excluded.discord_discriminator,
			avatar_url = coalesce(excluded.avatar_url, users.avatar_url),
			updated_at = now(),
			last_login_at = now()
		returning `+userColumns,
		ids.New(), profile.Username, profile.ID, profile.Discriminator, profile.Avatar))
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return nil, identity.ErrConflict
		}
		return nil, err
	}
	return u, nil
}

func (s *userStore) TouchLogin(ctx context.Context, userID string) error {
	res, err := s.q.ExecContext(ctx,
		`update users set last_login_at = now() where id = $1`, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return identity.ErrNotFound
	}
	return nil
}

func (s *userStore) UpdateProfile(ctx context.Context, userID string, upd identity.ProfileUpdate) (*identity.User, error) {
	var (
		setClauses []string
		args       []any
		idx        = 1
	)
	appendSet := func(column string, value *string) {
		if value == nil {
			return
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = nullif($%d,'')", column, idx))
		args = append(args, *value)
		idx++
	}
	appendSet("nickname", upd.Nickname)
	appendSet("bio", upd.Bio)
	appendSet("avatar_url", upd.AvatarURL)
	appendSet("status_text", upd.StatusText)
	appendSet("discord_link", upd.DiscordLink)
	if len(setClauses) == 0 {
		return s.Find(ctx, userID)
	}
	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, userID)

	query := fmt.Sprintf(`update users set %s where id = $%d returning %s`,
		strings.Join(setClauses, ", "), idx, userColumns)
	u, err := scanUser(s.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	return u, err
}

func (s *userStore) Search(ctx context.Context, query string, limit int) ([]identity.Overview, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	rows, err := s.q.QueryContext(ctx, `
		select u.id, u.username, coalesce(u.discord_id,''), coalesce(u.nickname,''),
			coalesce(u.avatar_url,''), coalesce(u.status_text,''),
			coalesce(a.admin_rank,''),
			exists (
				select 1 from bans b
				where b.user_id = u.id and b.is_active
					and (b.expires_at is null or b.expires_at > now())
			),
			exists (
				select 1 from mutes m
				where m.user_id = u.id and m.is_active
					and (m.expires_at is null or m.expires_at > now())
			)
		from users u
		left join admins a on a.user_id = u.id and a.is_active
		where $1 = '' or u.username ilike '%' || $1 || '%' or u.nickname ilike '%' || $1 || '%'
		order by u.created_at desc
		limit $2
	`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []identity.Overview
	for rows.Next() {
		var ov identity.Overview
		if err := rows.Scan(&ov.ID, &ov.Username, &ov.DiscordID, &ov.Nickname,
			&ov.AvatarURL, &ov.StatusText, &ov.AdminRank, &ov.Banned, &ov.Muted); err != nil {
			return nil, err
		}
		result = append(result, ov)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
