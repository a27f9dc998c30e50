package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/flozac77/StreamZilla/internal/domain/model"
	"github.com/flozac77/StreamZilla/internal/domain/repository"
	"github.com/flozac77/StreamZilla/internal/infrastructure/memcache"
	"github.com/flozac77/StreamZilla/internal/infrastructure/metrics"
)

// tokenSlotKey is the single key of the in-process token slot.
const tokenSlotKey = "app_token"

// TokenManager guarantees callers a currently valid app access token.
type TokenManager interface {
	// GetValidToken returns a token with at least the refresh margin left.
	// Failures are always *AuthError.
	GetValidToken(ctx context.Context) (*model.Token, error)

	// IsTokenValid checks a stored token locally and against the upstream.
	// The only error is a rate-limited *AuthError.
	IsTokenValid(ctx context.Context, token *model.Token) (bool, error)

	// GenerateNewToken requests and persists a fresh token.
	GenerateNewToken(ctx context.Context) (*model.Token, error)

	// Invalidate marks the token unusable and drops it from the cache slot.
	Invalidate(ctx context.Context, token *model.Token) error

	// AccessToken returns the secret of a valid token for Helix calls.
	AccessToken(ctx context.Context) (string, error)

	// InvalidateAccessToken invalidates the token with the given secret, if known.
	InvalidateAccessToken(ctx context.Context, accessToken string)
}

// TokenManagerConfig holds configuration for TokenManager.
type TokenManagerConfig struct {
	// RefreshBeforeExpiry is the minimum lifetime a returned token must have left.
	RefreshBeforeExpiry time.Duration
	// CacheTTL bounds how long the in-process slot is trusted.
	CacheTTL time.Duration
}

// DefaultTokenManagerConfig returns the default configuration.
func DefaultTokenManagerConfig() TokenManagerConfig {
	return TokenManagerConfig{
		RefreshBeforeExpiry: time.Hour,
		CacheTTL:            time.Hour,
	}
}

type tokenManager struct {
	repo   repository.TokenRepository
	issuer repository.TokenIssuer
	clock  clockwork.Clock
	slot   *memcache.TTLCache[string, *model.Token]
	group  singleflight.Group

	refreshBefore time.Duration
}

// NewTokenManager creates a TokenManager owning its own cache slot.
func NewTokenManager(
	repo repository.TokenRepository,
	issuer repository.TokenIssuer,
	clock clockwork.Clock,
	cfg TokenManagerConfig,
) TokenManager {
	return &tokenManager{
		repo:          repo,
		issuer:        issuer,
		clock:         clock,
		slot:          memcache.New[string, *model.Token](cfg.CacheTTL, clock),
		refreshBefore: cfg.RefreshBeforeExpiry,
	}
}

func (m *tokenManager) GetValidToken(ctx context.Context) (*model.Token, error) {
	if token, ok := m.slot.Get(tokenSlotKey); ok && m.usable(token) {
		metrics.TokenOperationsTotal.WithLabelValues(metrics.TokenOpGet, metrics.TokenResultCacheHit).Inc()
		return cloneToken(token), nil
	}

	// Concurrent refreshes collapse into one upstream call.
	result, err, shared := m.group.Do(tokenSlotKey, func() (any, error) {
		return m.loadOrGenerate(ctx)
	})

	if shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightGroupToken, metrics.SingleflightShared).Inc()
	} else {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightGroupToken, metrics.SingleflightInitiated).Inc()
	}

	if err != nil {
		metrics.TokenOperationsTotal.WithLabelValues(metrics.TokenOpGet, metrics.TokenResultError).Inc()
		return nil, asAuthError(err)
	}

	return cloneToken(result.(*model.Token)), nil
}

func (m *tokenManager) loadOrGenerate(ctx context.Context) (*model.Token, error) {
	stored, err := m.repo.FindLatestUnexpired(ctx, m.clock.Now())
	switch {
	case err == nil:
		valid, err := m.IsTokenValid(ctx, stored)
		if err != nil {
			return nil, err
		}
		if valid {
			m.slot.Set(tokenSlotKey, stored)
			return stored, nil
		}
	case errors.Is(err, repository.ErrTokenNotFound):
	default:
		slog.WarnContext(ctx, "failed to load stored token, generating a new one",
			"error", err,
		)
	}

	token, err := m.GenerateNewToken(ctx)
	if err != nil {
		return nil, err
	}

	m.slot.Set(tokenSlotKey, token)
	return token, nil
}

func (m *tokenManager) IsTokenValid(ctx context.Context, token *model.Token) (bool, error) {
	if !token.IsValid {
		metrics.TokenOperationsTotal.WithLabelValues(metrics.TokenOpValidate, metrics.TokenResultInvalid).Inc()
		return false, nil
	}

	if token.ExpiresWithin(m.clock.Now(), m.refreshBefore) {
		slog.InfoContext(ctx, "token expires soon, refreshing", "token", token)
		metrics.TokenOperationsTotal.WithLabelValues(metrics.TokenOpValidate, metrics.TokenResultInvalid).Inc()
		return false, nil
	}

	err := m.issuer.ValidateToken(ctx, token.AccessToken)
	if err == nil {
		now := m.clock.Now()
		token.MarkUsed(now)
		if err := m.repo.UpdateLastUsed(ctx, token.ID, now); err != nil {
			slog.WarnContext(ctx, "failed to record token use",
				"token", token,
				"error", err,
			)
		}
		metrics.TokenOperationsTotal.WithLabelValues(metrics.TokenOpValidate, metrics.TokenResultValid).Inc()
		return true, nil
	}

	if ue, ok := repository.AsUpstreamError(err); ok && ue.IsRateLimited() {
		metrics.TokenOperationsTotal.WithLabelValues(metrics.TokenOpValidate, metrics.TokenResultRateLimited).Inc()
		authErr := newAuthError(AuthErrorRateLimited, err)
		authErr.RetryAfter = ue.RetryAfter
		return false, authErr
	}

	// Fail closed: an ambiguous answer invalidates the token.
	slog.WarnContext(ctx, "token validation failed, invalidating",
		"token", token,
		"error", err,
	)
	metrics.TokenOperationsTotal.WithLabelValues(metrics.TokenOpValidate, metrics.TokenResultInvalid).Inc()
	if err := m.Invalidate(ctx, token); err != nil {
		slog.WarnContext(ctx, "failed to invalidate token",
			"token", token,
			"error", err,
		)
	}
	return false, nil
}

func (m *tokenManager) GenerateNewToken(ctx context.Context) (*model.Token, error) {
	issued, err := m.issuer.RequestAppToken(ctx)
	if err != nil {
		authErr := classifyIssueError(err)
		slog.ErrorContext(ctx, "failed to request app token",
			"kind", authErr.Kind,
			"error", err,
		)
		metrics.TokenOperationsTotal.WithLabelValues(metrics.TokenOpGenerate, string(authErr.Kind)).Inc()
		return nil, authErr
	}

	token, err := model.NewToken(issued.AccessToken, issued.ExpiresIn, m.clock.Now())
	if err != nil {
		metrics.TokenOperationsTotal.WithLabelValues(metrics.TokenOpGenerate, metrics.TokenResultError).Inc()
		return nil, newAuthError(AuthErrorInternal, err)
	}

	if err := m.repo.Insert(ctx, token); err != nil {
		slog.ErrorContext(ctx, "failed to persist new token",
			"token", token,
			"error", err,
		)
		metrics.TokenOperationsTotal.WithLabelValues(metrics.TokenOpGenerate, metrics.TokenResultError).Inc()
		return nil, newAuthError(AuthErrorInternal, err)
	}

	slog.InfoContext(ctx, "generated new app token", "token", token)
	metrics.TokenOperationsTotal.WithLabelValues(metrics.TokenOpGenerate, metrics.TokenResultSuccess).Inc()
	return token, nil
}

func (m *tokenManager) Invalidate(ctx context.Context, token *model.Token) error {
	token.Invalidate()
	if cached, ok := m.slot.Get(tokenSlotKey); ok && cached.ID == token.ID {
		m.slot.Delete(tokenSlotKey)
	}

	metrics.TokenOperationsTotal.WithLabelValues(metrics.TokenOpInvalidate, metrics.TokenResultSuccess).Inc()
	return m.repo.Invalidate(ctx, token.ID)
}

func (m *tokenManager) AccessToken(ctx context.Context) (string, error) {
	token, err := m.GetValidToken(ctx)
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

func (m *tokenManager) InvalidateAccessToken(ctx context.Context, accessToken string) {
	token, ok := m.slot.Get(tokenSlotKey)
	if !ok || token.AccessToken != accessToken {
		stored, err := m.repo.FindLatestUnexpired(ctx, m.clock.Now())
		if err != nil || stored.AccessToken != accessToken {
			return
		}
		token = stored
	}
	token = cloneToken(token)

	slog.WarnContext(ctx, "upstream rejected app token, invalidating", "token", token)
	if err := m.Invalidate(ctx, token); err != nil {
		slog.WarnContext(ctx, "failed to invalidate token",
			"token", token,
			"error", err,
		)
	}
}

func (m *tokenManager) usable(token *model.Token) bool {
	return token.IsValid && !token.ExpiresWithin(m.clock.Now(), m.refreshBefore)
}

func classifyIssueError(err error) *AuthError {
	ue, ok := repository.AsUpstreamError(err)
	if !ok {
		return newAuthError(AuthErrorInternal, err)
	}

	switch ue.StatusCode {
	case http.StatusTooManyRequests:
		authErr := newAuthError(AuthErrorRateLimited, err)
		authErr.RetryAfter = ue.RetryAfter
		return authErr
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return newAuthError(AuthErrorUnauthorized, err)
	default:
		return newAuthError(AuthErrorInternal, err)
	}
}

func cloneToken(t *model.Token) *model.Token {
	c := *t
	return &c
}
