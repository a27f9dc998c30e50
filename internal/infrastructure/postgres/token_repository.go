package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flozac77/StreamZilla/internal/domain/model"
	"github.com/flozac77/StreamZilla/internal/domain/repository"
	"github.com/flozac77/StreamZilla/internal/infrastructure/metrics"
)

// TokenRepository implements repository.TokenRepository using PostgreSQL.
type TokenRepository struct {
	db DBTX
}

// NewTokenRepository creates a new TokenRepository instance.
func NewTokenRepository(db DBTX) *TokenRepository {
	return &TokenRepository{db: db}
}

// FindLatestUnexpired returns the newest token that has not expired at now.
// Validity is not filtered here; the caller decides what an invalid row means.
func (r *TokenRepository) FindLatestUnexpired(ctx context.Context, now time.Time) (*model.Token, error) {
	const query = `
		SELECT id, access_token, token_type, expires_at, is_valid, created_at, last_used
		FROM twitch_tokens
		WHERE expires_at > $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, metrics.TableTokens).Inc()

	var token model.Token
	err := r.db.QueryRow(ctx, query, now).Scan(
		&token.ID,
		&token.AccessToken,
		&token.TokenType,
		&token.ExpiresAt,
		&token.IsValid,
		&token.CreatedAt,
		&token.LastUsed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to find latest token: %w", err)
	}

	return &token, nil
}

// Insert persists a newly issued token.
func (r *TokenRepository) Insert(ctx context.Context, token *model.Token) error {
	const query = `
		INSERT INTO twitch_tokens (id, access_token, token_type, expires_at, is_valid, created_at, last_used)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryInsert, metrics.TableTokens).Inc()

	_, err := r.db.Exec(ctx, query,
		token.ID,
		token.AccessToken,
		token.TokenType,
		token.ExpiresAt,
		token.IsValid,
		token.CreatedAt,
		token.LastUsed,
	)
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}

	return nil
}

// UpdateLastUsed records a successful validation.
func (r *TokenRepository) UpdateLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	const query = `UPDATE twitch_tokens SET last_used = $2 WHERE id = $1`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryUpdate, metrics.TableTokens).Inc()

	tag, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to update token last_used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrTokenNotFound
	}

	return nil
}

// Invalidate marks the token as unusable.
func (r *TokenRepository) Invalidate(ctx context.Context, id uuid.UUID) error {
	const query = `UPDATE twitch_tokens SET is_valid = FALSE WHERE id = $1`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryUpdate, metrics.TableTokens).Inc()

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrTokenNotFound
	}

	return nil
}

// PurgeOlderThan deletes invalid tokens created before cutoff.
func (r *TokenRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM twitch_tokens WHERE is_valid = FALSE AND created_at < $1`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryDelete, metrics.TableTokens).Inc()

	tag, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge tokens: %w", err)
	}

	return tag.RowsAffected(), nil
}

// Compile-time verification that TokenRepository implements repository.TokenRepository.
var _ repository.TokenRepository = (*TokenRepository)(nil)
