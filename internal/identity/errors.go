package identity

import "errors"

var (
	ErrNotFound     = errors.New("identity: not found")
	ErrConflict     = errors.New("identity: already exists")
	ErrInvalidInput = errors.New("identity: invalid input")

	// ErrInvalidCredentials is deliberately generic: callers never learn
	// whether the username or the password was wrong.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
)
