package usecase

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyGameName is returned when a search has no game name.
	ErrEmptyGameName = errors.New("game name cannot be empty")
	// ErrInvalidLimit is returned when the requested page size is outside 1..100.
	ErrInvalidLimit = errors.New("limit must be between 1 and 100")
	// ErrInvalidCursorSource is returned for an unknown cursor source.
	ErrInvalidCursorSource = errors.New("cursor source must be streams or videos")

	// ErrEmptyCode is returned when the authorization callback has no code.
	ErrEmptyCode = errors.New("authorization code cannot be empty")
	// ErrCodeExchange is returned when the upstream rejects an authorization code.
	ErrCodeExchange = errors.New("failed to exchange authorization code")
	// ErrUserTokenStore is returned when a user token cannot be read or written.
	ErrUserTokenStore = errors.New("user token store failure")
	// ErrNotLoggedIn is returned when a user has no stored token.
	ErrNotLoggedIn = errors.New("user is not logged in")
	// ErrUserTokenExpired is returned when the stored user token is no longer accepted.
	ErrUserTokenExpired = errors.New("user token expired")
)

// AuthErrorKind classifies app token failures.
type AuthErrorKind string

const (
	AuthErrorRateLimited  AuthErrorKind = "rate_limited"
	AuthErrorUnauthorized AuthErrorKind = "unauthorized"
	AuthErrorInternal     AuthErrorKind = "internal"
)

// AuthError is the only error the token lifecycle surfaces to callers.
// Its message never contains the cause; the cause is kept for logging.
type AuthError struct {
	Kind AuthErrorKind
	// RetryAfter is set for rate-limited failures when the upstream advertised a wait.
	RetryAfter time.Duration
	Err        error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("twitch authentication failed (%s)", e.Kind)
}

func (e *AuthError) Unwrap() error { return e.Err }

func newAuthError(kind AuthErrorKind, err error) *AuthError {
	return &AuthError{Kind: kind, Err: err}
}

// asAuthError keeps an existing *AuthError and wraps anything else as internal.
func asAuthError(err error) *AuthError {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	return newAuthError(AuthErrorInternal, err)
}

func isAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// SearchError wraps an unexpected failure while orchestrating a search.
type SearchError struct {
	GameName string
	Err      error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search for %q failed", e.GameName)
}

func (e *SearchError) Unwrap() error { return e.Err }

// UpstreamFetchError records a single aggregation source that failed and
// was treated as empty.
type UpstreamFetchError struct {
	Source string
	Err    error
}

func (e *UpstreamFetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error { return e.Err }
