package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/flozac77/StreamZilla/internal/domain/model"
	"github.com/flozac77/StreamZilla/internal/domain/repository"
	"github.com/flozac77/StreamZilla/internal/infrastructure/metrics"
)

// UserTokenRepository implements repository.UserTokenRepository using PostgreSQL.
type UserTokenRepository struct {
	db DBTX
}

func NewUserTokenRepository(db DBTX) *UserTokenRepository {
	return &UserTokenRepository{db: db}
}

// Save upserts the credential keyed by user id.
func (r *UserTokenRepository) Save(ctx context.Context, cred *model.UserCredential) error {
	const query = `
		INSERT INTO user_tokens (user_id, login, access_token, refresh_token, scopes, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			login = EXCLUDED.login,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			scopes = EXCLUDED.scopes,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryInsert, metrics.TableUserTokens).Inc()

	scopes := cred.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	_, err := r.db.Exec(ctx, query,
		cred.UserID,
		cred.Login,
		cred.AccessToken,
		cred.RefreshToken,
		scopes,
		cred.ExpiresAt,
		cred.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save user token: %w", err)
	}

	return nil
}

func (r *UserTokenRepository) Get(ctx context.Context, userID string) (*model.UserCredential, error) {
	const query = `
		SELECT user_id, login, access_token, refresh_token, scopes, expires_at, updated_at
		FROM user_tokens
		WHERE user_id = $1
	`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, metrics.TableUserTokens).Inc()

	var cred model.UserCredential
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&cred.UserID,
		&cred.Login,
		&cred.AccessToken,
		&cred.RefreshToken,
		&cred.Scopes,
		&cred.ExpiresAt,
		&cred.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrUserTokenNotFound
		}
		return nil, fmt.Errorf("failed to get user token: %w", err)
	}

	return &cred, nil
}

func (r *UserTokenRepository) Delete(ctx context.Context, userID string) error {
	const query = `DELETE FROM user_tokens WHERE user_id = $1`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryDelete, metrics.TableUserTokens).Inc()

	if _, err := r.db.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to delete user token: %w", err)
	}
	return nil
}

var _ repository.UserTokenRepository = (*UserTokenRepository)(nil)
