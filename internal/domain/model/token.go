package model

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TokenTypeBearer is the only token type issued by the client-credentials flow.
const TokenTypeBearer = "bearer"

// tokenPrefixLen is how much of an access token may appear in logs.
const tokenPrefixLen = 4

var (
	ErrEmptyAccessToken = errors.New("access token cannot be empty")
	ErrInvalidExpiry    = errors.New("token expiry must be positive")
)

// Token is an app access token issued by the upstream OAuth endpoint.
//
// Lifecycle: created valid on refresh, marked last used on every successful
// validation, invalidated when validation fails. Rows are only removed by
// the periodic purge of old invalid tokens.
type Token struct {
	ID          uuid.UUID
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
	IsValid     bool
	CreatedAt   time.Time
	LastUsed    *time.Time
}

// NewToken creates a valid bearer token expiring expiresIn after now.
func NewToken(accessToken string, expiresIn time.Duration, now time.Time) (*Token, error) {
	if accessToken == "" {
		return nil, ErrEmptyAccessToken
	}
	if expiresIn <= 0 {
		return nil, ErrInvalidExpiry
	}

	return &Token{
		ID:          uuid.New(),
		AccessToken: accessToken,
		TokenType:   TokenTypeBearer,
		ExpiresAt:   now.Add(expiresIn),
		IsValid:     true,
		CreatedAt:   now,
	}, nil
}

// IsExpired reports whether the token is past its expiry at now.
func (t *Token) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// ExpiresWithin reports whether fewer than d remain before expiry.
func (t *Token) ExpiresWithin(now time.Time, d time.Duration) bool {
	return t.ExpiresAt.Sub(now) < d
}

// MarkUsed records a successful use of the token.
func (t *Token) MarkUsed(now time.Time) {
	t.LastUsed = &now
}

// Invalidate marks the token as no longer usable.
func (t *Token) Invalidate() {
	t.IsValid = false
}

// Redacted returns a log-safe representation of the access token.
func (t *Token) Redacted() string {
	return RedactSecret(t.AccessToken)
}

// LogValue keeps the secret out of structured logs.
func (t *Token) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", t.ID.String()),
		slog.String("access_token", t.Redacted()),
		slog.Time("expires_at", t.ExpiresAt),
		slog.Bool("is_valid", t.IsValid),
	)
}

// RedactSecret keeps only a short prefix of a secret.
func RedactSecret(secret string) string {
	if len(secret) <= tokenPrefixLen {
		return strings.Repeat("*", len(secret))
	}
	return secret[:tokenPrefixLen] + "***"
}
