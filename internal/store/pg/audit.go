package pg

import (
	"context"

	"bastionrp.ru/internal/audit"
)

type auditStore struct {
	q querier
}

var _ audit.Store = (*auditStore)(nil)

func (s *auditStore) Append(ctx context.Context, e *audit.Entry) error {
	_, err := s.q.ExecContext(ctx, `
		insert into audit_log (id, actor_id, target_id, action, details, created_at)
		values ($1, $2, nullif($3,''), $4, $5, $6)
	`, e.ID, e.ActorID, e.TargetID, string(e.Action), e.Details, e.CreatedAt)
	return err
}

func (s *auditStore) Recent(ctx context.Context, limit int) ([]audit.Resolved, error) {
	limit = audit.ClampLimit(limit)
	// Usernames are resolved at read time; entries referencing removed
	// accounts keep empty names rather than failing.
	rows, err := s.q.QueryContext(ctx, `
		select e.id, e.actor_id, coalesce(e.target_id,''), e.action, e.details, e.created_at,
			coalesce(actor.username,''), coalesce(target.username,'')
		from audit_log e
		left join users actor on actor.id = e.actor_id
		left join users target on target.id = e.target_id
		order by e.created_at desc
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []audit.Resolved
	for rows.Next() {
		var (
			r      audit.Resolved
			action string
		)
		if err := rows.Scan(&r.ID, &r.ActorID, &r.TargetID, &action, &r.Details,
			&r.CreatedAt, &r.ActorUsername, &r.TargetUsername); err != nil {
			return nil, err
		}
		r.Action = audit.Action(action)
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
