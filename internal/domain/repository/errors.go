package repository

import "errors"

var (
	// ErrTokenNotFound is returned when no stored token matches the lookup.
	ErrTokenNotFound = errors.New("token not found")
	// ErrGameNotFound is returned when a game cannot be found.
	ErrGameNotFound = errors.New("game not found")
)

// ErrUserNotFound is returned when the upstream has no profile for a user token.
var ErrUserNotFound = errors.New("user not found")

// ErrUserTokenNotFound is returned when a user has no stored token.
var ErrUserTokenNotFound = errors.New("user token not found")
