package identity

import (
	"strings"
	"time"
)

// User is a platform account. Identification modes are mutually exclusive:
// local-credential users carry Username+PasswordHash, Discord users carry
// DiscordID (their Username mirrors the Discord handle on every login).
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`

	DiscordID            string `json:"discord_id,omitempty"`
	DiscordDiscriminator string `json:"discord_discriminator,omitempty"`

	Nickname    string `json:"nickname,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Bio         string `json:"bio,omitempty"`
	StatusText  string `json:"status_text,omitempty"`
	DiscordLink string `json:"discord_link,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	LastLoginAt time.Time `json:"last_login_at"`
}

// Local reports whether the account authenticates with a username and password.
func (u *User) Local() bool { return u.DiscordID == "" }

// DiscordProfile is the identity payload received from a completed Discord login.
type DiscordProfile struct {
	ID            string
	Username      string
	Discriminator string
	Avatar        string
}

// ProfileUpdate carries optional profile field changes. Nil means "leave as is".
type ProfileUpdate struct {
	Nickname    *string
	Bio         *string
	AvatarURL   *string
	StatusText  *string
	DiscordLink *string
}

// Overview is the admin-panel listing row: the user plus live privilege and
// sanction flags resolved by the storage layer.
type Overview struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	DiscordID  string `json:"-"`
	Nickname   string `json:"nickname,omitempty"`
	AvatarURL  string `json:"avatar_url,omitempty"`
	StatusText string `json:"status_text,omitempty"`
	IsOwner    bool   `json:"is_owner"`
	AdminRank  string `json:"admin_rank,omitempty"`
	Banned     bool   `json:"is_banned"`
	Muted      bool   `json:"is_muted"`
}

// OwnerMarker identifies the single owner account by configuration. Ownership
// is a pure function of these markers, never a stored toggle.
type OwnerMarker struct {
	DiscordID string
	Username  string
}

// Matches reports whether the user is the configured owner.
func (m OwnerMarker) Matches(u *User) bool {
	if u == nil {
		return false
	}
	if m.DiscordID != "" && u.DiscordID == m.DiscordID {
		return true
	}
	// Usernames are case-insensitive across the platform.
	return m.Username != "" && strings.EqualFold(u.Username, m.Username)
}
