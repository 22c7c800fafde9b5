package pg

import (
	"context"
	"database/sql"
	"errors"

	"bastionrp.ru/internal/forum"
)

type forumStore struct {
	q querier
}

var _ forum.Store = (*forumStore)(nil)

func (s *forumStore) InsertPost(ctx context.Context, p *forum.Post) error {
	_, err := s.q.ExecContext(ctx, `
		insert into forum_posts (id, author_id, title, body, category, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.AuthorID, p.Title, p.Body, p.Category, p.CreatedAt, p.UpdatedAt)
	return err
}

func (s *forumStore) GetPost(ctx context.Context, id string) (*forum.Post, error) {
	var p forum.Post
	err := s.q.QueryRowContext(ctx, `
		select p.id, p.author_id, coalesce(u.username,''), p.title, p.body,
			p.category, p.views, p.likes,
			(select count(*) from forum_comments c where c.post_id = p.id),
			p.created_at, p.updated_at
		from forum_posts p
		left join users u on u.id = p.author_id
		where p.id = $1
	`, id).Scan(&p.ID, &p.AuthorID, &p.AuthorUsername, &p.Title, &p.Body,
		&p.Category, &p.Views, &p.Likes,
		&p.CommentCount, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, forum.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *forumStore) ListPosts(ctx context.Context, limit, offset int) ([]forum.Post, error) {
	rows, err := s.q.QueryContext(ctx, `
		select p.id, p.author_id, coalesce(u.username,''), p.title, p.body,
			p.category, p.views, p.likes,
			(select count(*) from forum_comments c where c.post_id = p.id),
			p.created_at, p.updated_at
		from forum_posts p
		left join users u on u.id = p.author_id
		order by p.created_at desc
		limit $1 offset $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []forum.Post
	for rows.Next() {
		var p forum.Post
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.AuthorUsername, &p.Title, &p.Body,
			&p.Category, &p.Views, &p.Likes,
			&p.CommentCount, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *forumStore) IncrementViews(ctx context.Context, postID string) error {
	res, err := s.q.ExecContext(ctx,
		`update forum_posts set views = views + 1 where id = $1`, postID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return forum.ErrNotFound
	}
	return nil
}

func (s *forumStore) AddLike(ctx context.Context, postID string) (int, error) {
	var likes int
	err := s.q.QueryRowContext(ctx,
		`update forum_posts set likes = likes + 1 where id = $1 returning likes`, postID).Scan(&likes)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, forum.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return likes, nil
}

func (s *forumStore) InsertComment(ctx context.Context, c *forum.Comment) error {
	_, err := s.q.ExecContext(ctx, `
		insert into forum_comments (id, post_id, author_id, body, created_at)
		values ($1, $2, $3, $4, $5)
	`, c.ID, c.PostID, c.AuthorID, c.Body, c.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return forum.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *forumStore) ListComments(ctx context.Context, postID string) ([]forum.Comment, error) {
	rows, err := s.q.QueryContext(ctx, `
		select c.id, c.post_id, c.author_id, coalesce(u.username,''), c.body, c.created_at
		from forum_comments c
		left join users u on u.id = c.author_id
		where c.post_id = $1
		order by c.created_at
	`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []forum.Comment
	for rows.Next() {
		var c forum.Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.AuthorUsername, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
