package identity

import "context"

// Store describes persistence for user records.
type Store interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)

	// UpsertDiscord creates the user on first Discord login and refreshes the
	// mirrored Discord fields plus last_login on every subsequent one.
	UpsertDiscord(ctx context.Context, profile DiscordProfile) (*User, error)

	TouchLogin(ctx context.Context, userID string) error
	UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*User, error)

	// Search lists users for the admin panel, matching username or nickname
	// when query is non-empty, newest first otherwise. The live admin rank and
	// sanction flags are resolved by the store (lazy expiry included).
	Search(ctx context.Context, query string, limit int) ([]Overview, error)
}
