package auth

import "errors"

var (
	ErrMissingCredentials = errors.New("missing username or password")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvalidUser        = errors.New("invalid user")
)
