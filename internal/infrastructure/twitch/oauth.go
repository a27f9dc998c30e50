package twitch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nicklaw5/helix/v2"

	"github.com/flozac77/StreamZilla/internal/domain/model"
	"github.com/flozac77/StreamZilla/internal/domain/repository"
)

// Endpoint labels used in errors and metrics.
const (
	EndpointToken            = "token"
	EndpointValidate         = "validate"
	EndpointSearchCategories = "search_categories"
	EndpointStreams          = "streams"
	EndpointVideos           = "videos"
	EndpointUsers            = "users"
)

// OAuthClient implements the client-credentials and authorization-code flows.
type OAuthClient struct {
	cfg Config
	tr  *Transport
}

var (
	_ repository.TokenIssuer       = (*OAuthClient)(nil)
	_ repository.UserAuthenticator = (*OAuthClient)(nil)
	_ repository.UserVideoCatalog  = (*OAuthClient)(nil)
)

func NewOAuthClient(cfg Config, tr *Transport) *OAuthClient {
	return &OAuthClient{cfg: cfg, tr: tr}
}

// RequestAppToken performs the client-credentials grant.
func (c *OAuthClient) RequestAppToken(ctx context.Context) (*repository.AppToken, error) {
	api, err := newAPI(ctx, c.cfg, c.tr, "", "")
	if err != nil {
		return nil, err
	}

	resp, err := api.RequestAppAccessToken(nil)
	if err != nil {
		return nil, fmt.Errorf("upstream %s: %w", EndpointToken, err)
	}
	if err := c.check(EndpointToken, resp.ResponseCommon); err != nil {
		return nil, err
	}
	if resp.Data.AccessToken == "" {
		return nil, fmt.Errorf("upstream %s: response has no access token", EndpointToken)
	}

	return &repository.AppToken{
		AccessToken: resp.Data.AccessToken,
		ExpiresIn:   time.Duration(resp.Data.ExpiresIn) * time.Second,
		TokenType:   model.TokenTypeBearer,
	}, nil
}

// ValidateToken checks the token against the validate endpoint.
func (c *OAuthClient) ValidateToken(ctx context.Context, accessToken string) error {
	api, err := newAPI(ctx, c.cfg, c.tr, "", "")
	if err != nil {
		return err
	}

	_, resp, err := api.ValidateToken(accessToken)
	if err != nil {
		return fmt.Errorf("upstream %s: %w", EndpointValidate, err)
	}
	return c.check(EndpointValidate, resp.ResponseCommon)
}

// AuthorizeURL returns the URL a user is redirected to for login.
func (c *OAuthClient) AuthorizeURL(state string) string {
	api, err := newAPI(context.Background(), c.cfg, nil, "", "")
	if err != nil {
		return ""
	}
	return api.GetAuthorizationURL(&helix.AuthorizationURLParams{
		ResponseType: "code",
		Scopes:       c.cfg.Scopes,
		State:        state,
	})
}

// ExchangeCode trades an authorization code for a user token.
func (c *OAuthClient) ExchangeCode(ctx context.Context, code string) (*model.UserToken, error) {
	api, err := newAPI(ctx, c.cfg, c.tr, "", "")
	if err != nil {
		return nil, err
	}

	resp, err := api.RequestUserAccessToken(code)
	if err != nil {
		return nil, fmt.Errorf("upstream %s: %w", EndpointToken, err)
	}
	if err := c.check(EndpointToken, resp.ResponseCommon); err != nil {
		return nil, err
	}
	if resp.Data.AccessToken == "" {
		return nil, fmt.Errorf("upstream %s: response has no access token", EndpointToken)
	}

	return &model.UserToken{
		AccessToken:  resp.Data.AccessToken,
		RefreshToken: resp.Data.RefreshToken,
		ExpiresIn:    resp.Data.ExpiresIn,
		TokenType:    model.TokenTypeBearer,
		Scope:        resp.Data.Scopes,
	}, nil
}

// GetUser fetches the profile owning userAccessToken.
func (c *OAuthClient) GetUser(ctx context.Context, userAccessToken string) (*model.TwitchUser, error) {
	api, err := newAPI(ctx, c.cfg, c.tr, "", userAccessToken)
	if err != nil {
		return nil, err
	}

	resp, err := api.GetUsers(&helix.UsersParams{})
	if err != nil {
		return nil, fmt.Errorf("upstream %s: %w", EndpointUsers, err)
	}
	if err := c.check(EndpointUsers, resp.ResponseCommon); err != nil {
		return nil, err
	}
	if len(resp.Data.Users) == 0 {
		return nil, repository.ErrUserNotFound
	}

	u := resp.Data.Users[0]
	return &model.TwitchUser{
		ID:              u.ID,
		Login:           u.Login,
		DisplayName:     u.DisplayName,
		ProfileImageURL: u.ProfileImageURL,
		Email:           u.Email,
	}, nil
}

// GetUserVideos lists the archived broadcasts of userID with the user's own token.
func (c *OAuthClient) GetUserVideos(ctx context.Context, userAccessToken, userID string, first int) ([]model.Video, error) {
	api, err := newAPI(ctx, c.cfg, c.tr, "", userAccessToken)
	if err != nil {
		return nil, err
	}

	resp, err := api.GetVideos(&helix.VideosParams{
		UserID: userID,
		First:  first,
		Type:   "archive",
	})
	if err != nil {
		return nil, fmt.Errorf("upstream %s: %w", EndpointVideos, err)
	}
	if err := c.check(EndpointVideos, resp.ResponseCommon); err != nil {
		return nil, err
	}

	videos := make([]model.Video, 0, len(resp.Data.Videos))
	for _, v := range resp.Data.Videos {
		videos = append(videos, archiveToVideo(v, ""))
	}
	return videos, nil
}

func (c *OAuthClient) check(endpoint string, rc helix.ResponseCommon) error {
	return checkResponse(endpoint, rc, c.now())
}

func (c *OAuthClient) now() time.Time {
	if c.tr == nil {
		return time.Now()
	}
	return c.tr.clock.Now()
}

// newAPI builds a helix client bound to ctx. Clients are cheap and hold the
// token they were built with, so each call gets its own.
func newAPI(ctx context.Context, cfg Config, tr *Transport, appToken, userToken string) (*helix.Client, error) {
	opts := &helix.Options{
		ClientID:        cfg.ClientID,
		ClientSecret:    cfg.ClientSecret,
		RedirectURI:     cfg.RedirectURI,
		AppAccessToken:  appToken,
		UserAccessToken: userToken,
		APIBaseURL:      cfg.APIBaseURL,
	}
	if tr != nil {
		opts.HTTPClient = tr
	}

	api, err := helix.NewClientWithContext(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("create helix client: %w", err)
	}
	return api, nil
}

// checkResponse turns a non-2xx answer decoded by the library into an
// *UpstreamError.
func checkResponse(endpoint string, rc helix.ResponseCommon, now time.Time) error {
	if rc.StatusCode >= 200 && rc.StatusCode <= 299 {
		return nil
	}

	ue := &repository.UpstreamError{
		Endpoint:   endpoint,
		StatusCode: rc.StatusCode,
		Message:    rc.ErrorMessage,
	}
	if ue.Message == "" {
		ue.Message = http.StatusText(rc.StatusCode)
	}
	if ue.IsRateLimited() {
		ue.RetryAfter = RateLimitDelay(rc.Header, now)
	}
	return ue
}

// IsUnauthorized reports whether err is an upstream 401.
func IsUnauthorized(err error) bool {
	var ue *repository.UpstreamError
	return errors.As(err, &ue) && ue.StatusCode == http.StatusUnauthorized
}
