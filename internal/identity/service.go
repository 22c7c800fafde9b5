package identity

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"bastionrp.ru/internal/ids"
)

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)

const (
	minPasswordLength = 8
	// bcrypt only hashes the first 72 bytes; longer inputs are rejected
	// outright rather than silently truncated.
	maxPasswordLength = 72
)

// Service implements account lifecycle on top of a Store.
type Service struct {
	store Store
	owner OwnerMarker
	now   func() time.Time
}

// NewService constructs a Service. The owner marker may be empty on either
// field but not both; that is enforced by configuration loading.
func NewService(store Store, owner OwnerMarker) *Service {
	return &Service{store: store, owner: owner, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
	}
	return s
}

// IsOwner resolves ownership against the configured marker.
func (s *Service) IsOwner(u *User) bool { return s.owner.Matches(u) }

// Register creates a local-credential account.
func (s *Service) Register(ctx context.Context, username, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if !usernameRe.MatchString(username) {
		return nil, fmt.Errorf("%w: username must be 3-32 word characters", ErrInvalidInput)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return nil, fmt.Errorf("%w: password must be at most %d characters", ErrInvalidInput, maxPasswordLength)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	u := &User{
		ID:           ids.New(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastLoginAt:  now,
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login authenticates a local-credential account. Every failure mode collapses
// into ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	u, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.Local() {
		return nil, ErrInvalidCredentials
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := s.store.TouchLogin(ctx, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

// DiscordLogin upserts the account behind a completed Discord OAuth flow.
func (s *Service) DiscordLogin(ctx context.Context, profile DiscordProfile) (*User, error) {
	if strings.TrimSpace(profile.ID) == "" || strings.TrimSpace(profile.Username) == "" {
		return nil, fmt.Errorf("%w: discord id and username are required", ErrInvalidInput)
	}
	return s.store.UpsertDiscord(ctx, profile)
}

// Lookup returns the user by id.
func (s *Service) Lookup(ctx context.Context, userID string) (*User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.Find(ctx, userID)
}

// LookupUsername returns the user by username.
func (s *Service) LookupUsername(ctx context.Context, username string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	return s.store.FindByUsername(ctx, username)
}

// UpdateProfile applies profile field changes for the user.
func (s *Service) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if upd.Nickname != nil {
		trimmed := strings.TrimSpace(*upd.Nickname)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: nickname cannot be blank", ErrInvalidInput)
		}
		upd.Nickname = &trimmed
	}
	return s.store.UpdateProfile(ctx, userID, upd)
}

// SearchUsers lists users for the admin panel with owner flags filled in.
func (s *Service) SearchUsers(ctx context.Context, query string, limit int) ([]Overview, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	rows, err := s.store.Search(ctx, strings.TrimSpace(query), limit)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].IsOwner = s.owner.Matches(&User{Username: rows[i].Username, DiscordID: rows[i].DiscordID})
	}
	return rows, nil
}
