package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/flozac77/StreamZilla/internal/domain/model"
	"github.com/flozac77/StreamZilla/internal/domain/repository"
)

// DefaultUserVideosLimit is used when a user-videos request has no limit.
const DefaultUserVideosLimit = 20

// AuthService drives the authorization-code login flow for end users and
// the calls made later on their behalf.
type AuthService interface {
	// NewState returns an unguessable value binding a login to its callback.
	NewState() string

	// AuthURL returns the upstream login URL for state.
	AuthURL(state string) string

	// Login exchanges the code, fetches the user's profile and stores the
	// user's token.
	Login(ctx context.Context, code string) (*model.TwitchUser, error)

	// Logout forgets the user's stored token.
	Logout(ctx context.Context, userID string) error

	// UserVideos lists the user's archived broadcasts using the stored token.
	UserVideos(ctx context.Context, userID string, limit int) ([]model.Video, error)
}

type authService struct {
	auth   repository.UserAuthenticator
	videos repository.UserVideoCatalog
	tokens repository.UserTokenRepository
	clock  clockwork.Clock
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	auth repository.UserAuthenticator,
	videos repository.UserVideoCatalog,
	tokens repository.UserTokenRepository,
	clock clockwork.Clock,
) AuthService {
	return &authService{auth: auth, videos: videos, tokens: tokens, clock: clock}
}

func (s *authService) NewState() string {
	return uuid.NewString()
}

func (s *authService) AuthURL(state string) string {
	return s.auth.AuthorizeURL(state)
}

func (s *authService) Login(ctx context.Context, code string) (*model.TwitchUser, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrEmptyCode
	}

	token, err := s.auth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCodeExchange, err)
	}

	user, err := s.auth.GetUser(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	if err := s.tokens.Save(ctx, model.NewUserCredential(user, token, s.clock.Now())); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUserTokenStore, err)
	}

	return user, nil
}

func (s *authService) Logout(ctx context.Context, userID string) error {
	if err := s.tokens.Delete(ctx, userID); err != nil {
		return fmt.Errorf("%w: %w", ErrUserTokenStore, err)
	}
	return nil
}

func (s *authService) UserVideos(ctx context.Context, userID string, limit int) ([]model.Video, error) {
	if limit == 0 {
		limit = DefaultUserVideosLimit
	}
	if limit < 1 || limit > maxPageSize {
		return nil, ErrInvalidLimit
	}

	cred, err := s.tokens.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserTokenNotFound) {
			return nil, ErrNotLoggedIn
		}
		return nil, fmt.Errorf("%w: %w", ErrUserTokenStore, err)
	}

	if cred.IsExpired(s.clock.Now()) {
		s.forget(ctx, userID)
		return nil, ErrUserTokenExpired
	}

	videos, err := s.videos.GetUserVideos(ctx, cred.AccessToken, userID, limit)
	if err != nil {
		if ue, ok := repository.AsUpstreamError(err); ok && ue.StatusCode == http.StatusUnauthorized {
			s.forget(ctx, userID)
			return nil, ErrUserTokenExpired
		}
		return nil, fmt.Errorf("list user videos: %w", err)
	}

	return videos, nil
}

// forget drops a token the upstream no longer accepts.
func (s *authService) forget(ctx context.Context, userID string) {
	if err := s.tokens.Delete(ctx, userID); err != nil {
		slog.WarnContext(ctx, "failed to delete rejected user token", "user_id", userID, "error", err)
	}
}
