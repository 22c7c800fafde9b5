package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Defaults match the deployment the platform grew up with: Discord sessions
// live a week, local-credential sessions a month.
const (
	DefaultAddr            = ":8080"
	DefaultDiscordTokenTTL = 7 * 24 * time.Hour
	DefaultLocalTokenTTL   = 30 * 24 * time.Hour
)

// Config carries everything the service reads from the environment at startup.
type Config struct {
	Addr        string
	DatabaseURL string

	JWTSecret string

	// Owner identity markers. Ownership is resolved by comparing these against
	// a user's identity keys, never stored as a flag.
	OwnerDiscordID string
	OwnerUsername  string

	DiscordClientID     string
	DiscordClientSecret string
	DiscordRedirectURI  string

	DiscordTokenTTL time.Duration
	LocalTokenTTL   time.Duration
}

// FromEnv loads configuration from BASTION_* environment variables.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("BASTION_ADDR", DefaultAddr),
		DatabaseURL:         strings.TrimSpace(os.Getenv("BASTION_PG_DSN")),
		JWTSecret:           strings.TrimSpace(os.Getenv("BASTION_JWT_SECRET")),
		OwnerDiscordID:      strings.TrimSpace(os.Getenv("BASTION_OWNER_DISCORD_ID")),
		OwnerUsername:       strings.TrimSpace(os.Getenv("BASTION_OWNER_USERNAME")),
		DiscordClientID:     strings.TrimSpace(os.Getenv("BASTION_DISCORD_CLIENT_ID")),
		DiscordClientSecret: strings.TrimSpace(os.Getenv("BASTION_DISCORD_CLIENT_SECRET")),
		DiscordRedirectURI:  strings.TrimSpace(os.Getenv("BASTION_DISCORD_REDIRECT_URI")),
		DiscordTokenTTL:     DefaultDiscordTokenTTL,
		LocalTokenTTL:       DefaultLocalTokenTTL,
	}

	if cfg.JWTSecret == "" {
		return Config{}, errors.New("BASTION_JWT_SECRET is required")
	}
	if cfg.OwnerDiscordID == "" && cfg.OwnerUsername == "" {
		return Config{}, errors.New("an owner marker is required: set BASTION_OWNER_DISCORD_ID or BASTION_OWNER_USERNAME")
	}

	var err error
	if cfg.DiscordTokenTTL, err = ttlOr("BASTION_DISCORD_TOKEN_TTL", DefaultDiscordTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.LocalTokenTTL, err = ttlOr("BASTION_LOCAL_TOKEN_TTL", DefaultLocalTokenTTL); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func ttlOr(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
