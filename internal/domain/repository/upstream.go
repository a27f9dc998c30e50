package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/flozac77/StreamZilla/internal/domain/model"
)

// AppToken is the raw answer of the client-credentials grant.
type AppToken struct {
	AccessToken string
	ExpiresIn   time.Duration
	TokenType   string
}

// TokenIssuer talks to the upstream OAuth endpoints on behalf of the application.
type TokenIssuer interface {
	// RequestAppToken performs the client-credentials grant.
	RequestAppToken(ctx context.Context) (*AppToken, error)

	// ValidateToken returns nil when the upstream accepts the token.
	// A rejection is reported as *UpstreamError.
	ValidateToken(ctx context.Context, accessToken string) error
}

// UserAuthenticator drives the authorization-code flow for end users.
type UserAuthenticator interface {
	AuthorizeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*model.UserToken, error)
	GetUser(ctx context.Context, userAccessToken string) (*model.TwitchUser, error)
}

// UserVideoCatalog lists a user's own broadcasts with that user's token.
type UserVideoCatalog interface {
	GetUserVideos(ctx context.Context, userAccessToken, userID string, first int) ([]model.Video, error)
}

// GameCatalog searches the upstream category catalogue.
type GameCatalog interface {
	SearchCategories(ctx context.Context, query string, first int) ([]model.Game, error)
}

// VideoQuery selects one page of an upstream video collection.
type VideoQuery struct {
	GameID string
	First  int
	After  string
}

// VideoPage is one page of normalized videos and the cursor to the next one.
type VideoPage struct {
	Videos []model.Video
	Cursor string
}

// VideoCatalog lists live streams and archived broadcasts for a game.
type VideoCatalog interface {
	GetStreams(ctx context.Context, q VideoQuery) (*VideoPage, error)
	GetArchives(ctx context.Context, q VideoQuery) (*VideoPage, error)
}

// UpstreamError is a non-2xx answer from the upstream API.
type UpstreamError struct {
	Endpoint   string
	StatusCode int
	Message    string
	// RetryAfter is the server-advertised wait for a rate-limited call.
	RetryAfter time.Duration
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream %s: status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("upstream %s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// IsRateLimited reports whether the upstream answered 429.
func (e *UpstreamError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// AsUpstreamError extracts an *UpstreamError from err's chain.
func AsUpstreamError(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
