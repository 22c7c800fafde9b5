// Package token mints and verifies the signed session credential. The
// embedded privilege snapshot is a cache: it gates entry to the admin surface
// only, every moderation mutation re-resolves privilege from live state.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrExpired is distinguished so callers can prompt a re-login.
	ErrExpired = errors.New("token: expired")

	// ErrInvalid covers every other structural or signature failure. Which
	// check failed is deliberately not revealed.
	ErrInvalid = errors.New("token: invalid")
)

// Snapshot is the identity and privilege cache carried inside a credential.
type Snapshot struct {
	UserID   string
	Username string
	Owner    bool
	Admin    bool
}

// Claims is the JWT claim set used across the service.
type Claims struct {
	Username string `json:"username,omitempty"`
	Owner    bool   `json:"is_owner"`
	Admin    bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies session credentials with HS256.
type Issuer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithIssuer overrides the issuer claim.
func WithIssuer(iss string) Option {
	return func(i *Issuer) { i.issuer = strings.TrimSpace(iss) }
}

// WithClock overrides the time source, for tests.
func WithClock(fn func() time.Time) Option {
	return func(i *Issuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// NewIssuer constructs an Issuer around the configured signing secret.
func NewIssuer(secret string, opts ...Option) (*Issuer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("token: signing secret is required")
	}
	i := &Issuer{secret: []byte(secret), issuer: "bastion", now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue signs a credential embedding the snapshot, valid for ttl.
func (i *Issuer) Issue(s Snapshot, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(s.UserID) == "" {
		return "", time.Time{}, errors.New("token: user id is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("token: ttl must be greater than zero")
	}
	now := i.now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		Username: s.Username,
		Owner:    s.Owner,
		Admin:    s.Admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   s.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks signature and expiry and returns the embedded snapshot.
func (i *Issuer) Verify(raw string) (Snapshot, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Snapshot{}, ErrInvalid
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalid
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithIssuer(i.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Snapshot{}, ErrExpired
		}
		return Snapshot{}, ErrInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Snapshot{}, ErrInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Snapshot{}, ErrInvalid
	}
	return Snapshot{
		UserID:   claims.Subject,
		Username: claims.Username,
		Owner:    claims.Owner,
		Admin:    claims.Admin,
	}, nil
}
