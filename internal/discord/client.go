// Package discord implements the OAuth2 code exchange and user fetch against
// the Discord API.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bastionrp.ru/internal/identity"
)

const (
	defaultAuthorizeURL = "https://discord.com/oauth2/authorize"
	defaultTokenURL     = "https://discord.com/api/oauth2/token"
	defaultUserURL      = "https://discord.com/api/users/@me"
	defaultCDNURL       = "https://cdn.discordapp.com"
)

// ErrExchangeFailed means Discord rejected the authorization code.
var ErrExchangeFailed = errors.New("discord: code exchange failed")

// Config carries the OAuth2 application credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Client talks to the Discord OAuth2 and user endpoints.
type Client struct {
	cfg  Config
	http *http.Client

	// endpoint overrides for tests
	tokenURL string
	userURL  string
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: 10 * time.Second},
		tokenURL: defaultTokenURL,
		userURL:  defaultUserURL,
	}
}

// WithEndpoints overrides the API endpoints, for tests.
func (c *Client) WithEndpoints(tokenURL, userURL string) *Client {
	if tokenURL != "" {
		c.tokenURL = tokenURL
	}
	if userURL != "" {
		c.userURL = userURL
	}
	return c
}

// Configured reports whether the OAuth2 application is set up.
func (c *Client) Configured() bool {
	return c.cfg.ClientID != "" && c.cfg.ClientSecret != "" && c.cfg.RedirectURI != ""
}

// AuthURL builds the authorization redirect for the identify scope.
func (c *Client) AuthURL(state string) string {
	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", "identify")
	if state != "" {
		q.Set("state", state)
	}
	return defaultAuthorizeURL + "?" + q.Encode()
}

// Exchange trades an authorization code for an access token.
func (c *Client) Exchange(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", ErrExchangeFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	if payload.AccessToken == "" {
		return "", ErrExchangeFailed
	}
	return payload.AccessToken, nil
}

// FetchUser loads the authenticated user's Discord profile.
func (c *Client) FetchUser(ctx context.Context, accessToken string) (identity.DiscordProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userURL, nil)
	if err != nil {
		return identity.DiscordProfile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return identity.DiscordProfile{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return identity.DiscordProfile{}, fmt.Errorf("discord: user fetch failed with status %d", resp.StatusCode)
	}

	var payload struct {
		ID            string `json:"id"`
		Username      string `json:"username"`
		Discriminator string `json:"discriminator"`
		Avatar        string `json:"avatar"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return identity.DiscordProfile{}, err
	}
	if payload.ID == "" {
		return identity.DiscordProfile{}, errors.New("discord: user response missing id")
	}

	profile := identity.DiscordProfile{
		ID:            payload.ID,
		Username:      payload.Username,
		Discriminator: payload.Discriminator,
	}
	if payload.Avatar != "" {
		profile.Avatar = fmt.Sprintf("%s/avatars/%s/%s.png", defaultCDNURL, payload.ID, payload.Avatar)
	}
	return profile, nil
}
