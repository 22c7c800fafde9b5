package moderation

import "errors"

var (
	// ErrForbidden means the caller's live privilege does not permit the
	// requested action.
	ErrForbidden    = errors.New("moderation: forbidden")
	ErrNotFound     = errors.New("moderation: not found")
	ErrInvalidInput = errors.New("moderation: invalid input")
)
