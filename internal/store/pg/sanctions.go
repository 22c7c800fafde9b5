package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bastionrp.ru/internal/sanction"
)

// Bans and mutes live in structurally identical but separate tables.
type sanctionStore struct {
	q querier
}

var _ sanction.Store = (*sanctionStore)(nil)

func tableFor(kind sanction.Kind) (string, error) {
	switch kind {
	case sanction.KindBan:
		return "bans", nil
	case sanction.KindMute:
		return "mutes", nil
	default:
		return "", fmt.Errorf("%w: %q", sanction.ErrInvalidKind, kind)
	}
}

func (s *sanctionStore) Insert(ctx context.Context, row *sanction.Sanction) error {
	table, err := tableFor(row.Kind)
	if err != nil {
		return err
	}
	var durationSeconds sql.NullInt64
	if row.Duration != nil {
		durationSeconds = sql.NullInt64{Int64: int64(row.Duration.Seconds()), Valid: true}
	}
	var expires sql.NullTime
	if row.ExpiresAt != nil {
		expires = sql.NullTime{Time: *row.ExpiresAt, Valid: true}
	}
	_, err = s.q.ExecContext(ctx, `
		insert into `+table+` (id, user_id, actor_id, reason, duration_seconds, issued_at, expires_at, is_active)
		values ($1, $2, $3, $4, $5, $6, $7, true)
	`, row.ID, row.UserID, row.ActorID, row.Reason, durationSeconds, row.IssuedAt, expires)
	return err
}

func (s *sanctionStore) ActiveRows(ctx context.Context, userID string, kind sanction.Kind) ([]sanction.Sanction, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx, `
		select id, user_id, actor_id, reason, duration_seconds, issued_at, expires_at, is_active
		from `+table+`
		where user_id = $1 and is_active
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSanctions(rows, kind)
}

func (s *sanctionStore) DeactivateAll(ctx context.Context, userID string, kind sanction.Kind) (int, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	res, err := s.q.ExecContext(ctx,
		`update `+table+` set is_active = false where user_id = $1 and is_active`, userID)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *sanctionStore) History(ctx context.Context, userID string) ([]sanction.Sanction, error) {
	rows, err := s.q.QueryContext(ctx, `
		select id, user_id, actor_id, reason, duration_seconds, issued_at, expires_at, is_active, kind
		from (
			select id, user_id, actor_id, reason, duration_seconds, issued_at, expires_at, is_active, 'ban' as kind from bans
			union all
			select id, user_id, actor_id, reason, duration_seconds, issued_at, expires_at, is_active, 'mute' as kind from mutes
		) s
		where user_id = $1
		order by issued_at desc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []sanction.Sanction
	for rows.Next() {
		var (
			row             sanction.Sanction
			durationSeconds sql.NullInt64
			expires         sql.NullTime
			kind            string
		)
		if err := rows.Scan(&row.ID, &row.UserID, &row.ActorID, &row.Reason,
			&durationSeconds, &row.IssuedAt, &expires, &row.Active, &kind); err != nil {
			return nil, err
		}
		row.Kind = sanction.Kind(kind)
		if durationSeconds.Valid {
			d := time.Duration(durationSeconds.Int64) * time.Second
			row.Duration = &d
		}
		if expires.Valid {
			t := expires.Time
			row.ExpiresAt = &t
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func collectSanctions(rows *sql.Rows, kind sanction.Kind) ([]sanction.Sanction, error) {
	var result []sanction.Sanction
	for rows.Next() {
		var (
			row             sanction.Sanction
			durationSeconds sql.NullInt64
			expires         sql.NullTime
		)
		if err := rows.Scan(&row.ID, &row.UserID, &row.ActorID, &row.Reason,
			&durationSeconds, &row.IssuedAt, &expires, &row.Active); err != nil {
			return nil, err
		}
		row.Kind = kind
		if durationSeconds.Valid {
			d := time.Duration(durationSeconds.Int64) * time.Second
			row.Duration = &d
		}
		if expires.Valid {
			t := expires.Time
			row.ExpiresAt = &t
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
