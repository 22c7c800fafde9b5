package forum

import (
	"context"
	"errors"
	"testing"
	"time"

	"bastionrp.ru/internal/sanction"
)

type memStore struct {
	posts    map[string]*Post
	comments []Comment
}

func newMemStore() *memStore {
	return &memStore{posts: map[string]*Post{}}
}

func (m *memStore) InsertPost(_ context.Context, p *Post) error {
	cp := *p
	m.posts[p.ID] = &cp
	return nil
}

func (m *memStore) GetPost(_ context.Context, id string) (*Post, error) {
	if p, ok := m.posts[id]; ok {
		return p, nil
	}
	return nil, ErrNotFound
}

func (m *memStore) ListPosts(_ context.Context, limit, offset int) ([]Post, error) {
	var out []Post
	for _, p := range m.posts {
		out = append(out, *p)
	}
	return out, nil
}

func (m *memStore) IncrementViews(_ context.Context, postID string) error {
	p, ok := m.posts[postID]
	if !ok {
		return ErrNotFound
	}
	p.Views++
	return nil
}

func (m *memStore) AddLike(_ context.Context, postID string) (int, error) {
	p, ok := m.posts[postID]
	if !ok {
		return 0, ErrNotFound
	}
	p.Likes++
	return p.Likes, nil
}

func (m *memStore) InsertComment(_ context.Context, c *Comment) error {
	m.comments = append(m.comments, *c)
	return nil
}

func (m *memStore) ListComments(_ context.Context, postID string) ([]Comment, error) {
	var out []Comment
	for _, c := range m.comments {
		if c.PostID == postID {
			out = append(out, c)
		}
	}
	return out, nil
}

type memSanctions struct {
	rows []*sanction.Sanction
}

func (m *memSanctions) Insert(_ context.Context, s *sanction.Sanction) error {
	cp := *s
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *memSanctions) ActiveRows(_ context.Context, userID string, kind sanction.Kind) ([]sanction.Sanction, error) {
	var out []sanction.Sanction
	for _, s := range m.rows {
		if s.UserID == userID && s.Kind == kind && s.Active {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memSanctions) DeactivateAll(_ context.Context, userID string, kind sanction.Kind) (int, error) {
	count := 0
	for _, s := range m.rows {
		if s.UserID == userID && s.Kind == kind && s.Active {
			s.Active = false
			count++
		}
	}
	return count, nil
}

func (m *memSanctions) History(_ context.Context, userID string) ([]sanction.Sanction, error) {
	return nil, nil
}

func newTestService(clock *time.Time) (*Service, *sanction.Ledger) {
	tick := func() time.Time { return *clock }
	ledger := sanction.NewLedger(&memSanctions{}).WithClock(tick)
	svc := NewService(newMemStore(), ledger).WithClock(tick)
	return svc, ledger
}

func TestCreatePostAndComment(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(&clock)
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, "u-alice", "  Server rules  ", "Read before posting.", "rules")
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if post.Title != "Server rules" {
		t.Fatalf("title not trimmed: %q", post.Title)
	}

	comment, err := svc.AddComment(ctx, "u-bob", post.ID, "Understood.")
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if comment.PostID != post.ID {
		t.Fatalf("unexpected post id: %q", comment.PostID)
	}

	got, comments, err := svc.GetPost(ctx, post.ID)
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if got.ID != post.ID || len(comments) != 1 {
		t.Fatalf("unexpected result: post=%+v comments=%d", got, len(comments))
	}
}

func TestCategoryDefaultAndCounters(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(&clock)
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, "u-alice", "hello", "first", "")
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if post.Category != "general" {
		t.Fatalf("category = %q, want default", post.Category)
	}

	for i := 0; i < 3; i++ {
		if _, _, err := svc.GetPost(ctx, post.ID); err != nil {
			t.Fatalf("GetPost #%d: %v", i+1, err)
		}
	}
	got, _, err := svc.GetPost(ctx, post.ID)
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if got.Views != 4 {
		t.Fatalf("views = %d, want 4", got.Views)
	}

	likes, err := svc.Like(ctx, "u-bob", post.ID)
	if err != nil {
		t.Fatalf("Like: %v", err)
	}
	if likes != 1 {
		t.Fatalf("likes = %d, want 1", likes)
	}
	if _, err := svc.Like(ctx, "u-bob", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("like on missing post: err=%v", err)
	}
}

func TestBlankContentRejected(t *testing.T) {
	clock := time.Now().UTC()
	svc, _ := newTestService(&clock)

	if _, err := svc.CreatePost(context.Background(), "u-alice", "  ", "body", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank title: err=%v", err)
	}
	if _, err := svc.AddComment(context.Background(), "u-alice", "p-1", "   "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank comment: err=%v", err)
	}
}

func TestSuspendedAuthorCannotPost(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, ledger := newTestService(&clock)
	ctx := context.Background()

	if _, err := ledger.Impose(ctx, "u-alice", "u-mod", sanction.KindMute, "flood", nil); err != nil {
		t.Fatalf("Impose: %v", err)
	}

	if _, err := svc.CreatePost(ctx, "u-alice", "title", "body", ""); !errors.Is(err, ErrSuspended) {
		t.Fatalf("muted author post: err=%v, want ErrSuspended", err)
	}

	// Default mute is an hour; once it lapses the author posts again with no
	// unmute call ever made.
	clock = clock.Add(sanction.DefaultMuteDuration + time.Minute)
	if _, err := svc.CreatePost(ctx, "u-alice", "title", "body", ""); err != nil {
		t.Fatalf("post after mute expiry: %v", err)
	}
}

func TestBannedAuthorCannotComment(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, ledger := newTestService(&clock)
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, "u-bob", "open thread", "discuss", "")
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if _, err := ledger.Impose(ctx, "u-alice", "u-mod", sanction.KindBan, "", nil); err != nil {
		t.Fatalf("Impose: %v", err)
	}
	if _, err := svc.AddComment(ctx, "u-alice", post.ID, "hi"); !errors.Is(err, ErrSuspended) {
		t.Fatalf("banned author comment: err=%v, want ErrSuspended", err)
	}
}
