package pg

import (
	"context"
	"database/sql"
	"errors"

	"bastionrp.ru/internal/faction"
	"bastionrp.ru/internal/ids"
)

type factionStore struct {
	q querier
}

var _ faction.Store = (*factionStore)(nil)

func (s *factionStore) Create(ctx context.Context, f *faction.Faction) error {
	if f.ID == "" {
		f.ID = ids.New()
	}
	err := s.q.QueryRowContext(ctx, `
		insert into factions (id, name, tag, description, created_at)
		values ($1, $2, nullif($3,''), nullif($4,''), now())
		returning created_at
	`, f.ID, f.Name, f.Tag, f.Description).Scan(&f.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return faction.ErrConflict
		}
		return err
	}
	return nil
}

func (s *factionStore) Get(ctx context.Context, id string) (*faction.Faction, error) {
	var f faction.Faction
	err := s.q.QueryRowContext(ctx, `
		select id, name, coalesce(tag,''), coalesce(description,''), created_at
		from factions where id = $1`, id).
		Scan(&f.ID, &f.Name, &f.Tag, &f.Description, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, faction.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *factionStore) List(ctx context.Context) ([]faction.Faction, error) {
	rows, err := s.q.QueryContext(ctx, `
		select id, name, coalesce(tag,''), coalesce(description,''), created_at
		from factions order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []faction.Faction
	for rows.Next() {
		var f faction.Faction
		if err := rows.Scan(&f.ID, &f.Name, &f.Tag, &f.Description, &f.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *factionStore) Assign(ctx context.Context, m *faction.Membership) (bool, error) {
	// Duplicate assignment is a defined no-op.
	res, err := s.q.ExecContext(ctx, `
		insert into faction_members (user_id, faction_id, rank, is_general, joined_at)
		values ($1, $2, nullif($3,''), $4, $5)
		on conflict (user_id, faction_id) do nothing
	`, m.UserID, m.FactionID, m.Rank, m.General, m.JoinedAt)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *factionStore) Remove(ctx context.Context, userID, factionID string) error {
	res, err := s.q.ExecContext(ctx,
		`delete from faction_members where user_id = $1 and faction_id = $2`, userID, factionID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return faction.ErrNotFound
	}
	return nil
}

func (s *factionStore) Roster(ctx context.Context, factionID string) ([]faction.Member, error) {
	rows, err := s.q.QueryContext(ctx, `
		select m.user_id, m.faction_id, coalesce(m.rank,''), m.is_general, m.joined_at,
			u.username, coalesce(u.nickname,''), coalesce(u.avatar_url,'')
		from faction_members m
		join users u on u.id = m.user_id
		where m.faction_id = $1
		order by m.is_general desc, m.joined_at
	`, factionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []faction.Member
	for rows.Next() {
		var member faction.Member
		if err := rows.Scan(&member.UserID, &member.FactionID, &member.Rank, &member.General,
			&member.JoinedAt, &member.Username, &member.Nickname, &member.AvatarURL); err != nil {
			return nil, err
		}
		result = append(result, member)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *factionStore) MembershipsOf(ctx context.Context, userID string) ([]faction.Membership, error) {
	rows, err := s.q.QueryContext(ctx, `
		select user_id, faction_id, coalesce(rank,''), is_general, joined_at
		from faction_members
		where user_id = $1
		order by joined_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []faction.Membership
	for rows.Next() {
		var m faction.Membership
		if err := rows.Scan(&m.UserID, &m.FactionID, &m.Rank, &m.General, &m.JoinedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
