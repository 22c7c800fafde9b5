// Package forum implements the discussion board: threads and comments,
// gated on the author's current sanction status.
package forum

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bastionrp.ru/internal/ids"
	"bastionrp.ru/internal/sanction"
)

var (
	ErrNotFound     = errors.New("forum: not found")
	ErrInvalidInput = errors.New("forum: invalid input")
	// ErrSuspended means the author is currently banned or muted and may not
	// publish content.
	ErrSuspended = errors.New("forum: author is suspended")
)

const (
	maxTitleLength    = 200
	maxBodyLength     = 20000
	maxCategoryLength = 50

	defaultCategory = "general"
)

// Post is a forum thread.
type Post struct {
	ID             string    `json:"id"`
	AuthorID       string    `json:"author_id"`
	AuthorUsername string    `json:"author_username,omitempty"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	Category       string    `json:"category"`
	Views          int       `json:"views"`
	Likes          int       `json:"likes"`
	CommentCount   int       `json:"comment_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Comment is a reply under a post.
type Comment struct {
	ID             string    `json:"id"`
	PostID         string    `json:"post_id"`
	AuthorID       string    `json:"author_id"`
	AuthorUsername string    `json:"author_username,omitempty"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store persists posts and comments.
type Store interface {
	InsertPost(ctx context.Context, p *Post) error
	GetPost(ctx context.Context, id string) (*Post, error)
	ListPosts(ctx context.Context, limit, offset int) ([]Post, error)
	IncrementViews(ctx context.Context, postID string) error
	AddLike(ctx context.Context, postID string) (int, error)
	InsertComment(ctx context.Context, c *Comment) error
	ListComments(ctx context.Context, postID string) ([]Comment, error)
}

// Service validates content and enforces sanctions before any write. Reading
// is never gated.
type Service struct {
	store  Store
	ledger *sanction.Ledger
	now    func() time.Time
}

func NewService(store Store, ledger *sanction.Ledger) *Service {
	return &Service{store: store, ledger: ledger, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
	}
	return s
}

// guard refuses authors who are currently banned or muted. Expired sanctions
// are evaluated lazily, so an author whose mute just lapsed posts normally.
func (s *Service) guard(ctx context.Context, authorID string) error {
	status, err := s.ledger.Status(ctx, authorID)
	if err != nil {
		return err
	}
	if status.Banned || status.Muted {
		return ErrSuspended
	}
	return nil
}

// CreatePost publishes a new thread.
func (s *Service) CreatePost(ctx context.Context, authorID, title, body, category string) (*Post, error) {
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	category = strings.TrimSpace(category)
	if title == "" || body == "" {
		return nil, fmt.Errorf("%w: title and body are required", ErrInvalidInput)
	}
	if len(title) > maxTitleLength {
		return nil, fmt.Errorf("%w: title too long", ErrInvalidInput)
	}
	if len(body) > maxBodyLength {
		return nil, fmt.Errorf("%w: body too long", ErrInvalidInput)
	}
	if category == "" {
		category = defaultCategory
	}
	if len(category) > maxCategoryLength {
		return nil, fmt.Errorf("%w: category too long", ErrInvalidInput)
	}
	if err := s.guard(ctx, authorID); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	post := &Post{
		ID:        ids.New(),
		AuthorID:  authorID,
		Title:     title,
		Body:      body,
		Category:  category,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertPost(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// AddComment publishes a reply under an existing post.
func (s *Service) AddComment(ctx context.Context, authorID, postID, body string) (*Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: body is required", ErrInvalidInput)
	}
	if len(body) > maxBodyLength {
		return nil, fmt.Errorf("%w: body too long", ErrInvalidInput)
	}
	if err := s.guard(ctx, authorID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetPost(ctx, postID); err != nil {
		return nil, err
	}
	comment := &Comment{
		ID:        ids.New(),
		PostID:    postID,
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// Like bumps the post's like counter and returns the new total. Suspended
// users cannot like; there is no per-user like dedup, matching the original
// board's behavior.
func (s *Service) Like(ctx context.Context, userID, postID string) (int, error) {
	if err := s.guard(ctx, userID); err != nil {
		return 0, err
	}
	return s.store.AddLike(ctx, postID)
}

// GetPost returns a post with its comments. Every read counts as a view.
func (s *Service) GetPost(ctx context.Context, id string) (*Post, []Comment, error) {
	if err := s.store.IncrementViews(ctx, id); err != nil {
		return nil, nil, err
	}
	post, err := s.store.GetPost(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	comments, err := s.store.ListComments(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return post, comments, nil
}

// ListPosts returns a page of threads, newest first.
func (s *Service) ListPosts(ctx context.Context, limit, offset int) ([]Post, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListPosts(ctx, limit, offset)
}
