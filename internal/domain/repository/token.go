package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/flozac77/StreamZilla/internal/domain/model"
)

// TokenRepository defines the interface for app token persistence.
// Implementations should be provided by the infrastructure layer (e.g., PostgreSQL).
type TokenRepository interface {
	// FindLatestUnexpired returns the most recently created token whose expiry is after now.
	// Returns nil and ErrTokenNotFound if there is none.
	FindLatestUnexpired(ctx context.Context, now time.Time) (*model.Token, error)

	// Insert persists a newly issued token.
	Insert(ctx context.Context, token *model.Token) error

	// UpdateLastUsed records a successful validation of the token.
	// Returns ErrTokenNotFound if the token does not exist.
	UpdateLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error

	// Invalidate marks the token as unusable.
	// Returns ErrTokenNotFound if the token does not exist.
	Invalidate(ctx context.Context, id uuid.UUID) error

	// PurgeOlderThan deletes invalid tokens created before cutoff and returns the count.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// UserTokenRepository persists the tokens users granted at login, one per user.
type UserTokenRepository interface {
	// Save inserts or replaces the credential of its user.
	Save(ctx context.Context, cred *model.UserCredential) error

	// Get returns ErrUserTokenNotFound if the user has no stored token.
	Get(ctx context.Context, userID string) (*model.UserCredential, error)

	// Delete is a no-op for a user without a stored token.
	Delete(ctx context.Context, userID string) error
}
