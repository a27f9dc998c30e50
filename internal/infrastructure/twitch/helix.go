package twitch

import (
	"context"
	"fmt"
	"time"

	"github.com/nicklaw5/helix/v2"

	"github.com/flozac77/StreamZilla/internal/domain/model"
	"github.com/flozac77/StreamZilla/internal/domain/repository"
)

const channelBaseURL = "https://www.twitch.tv/"

// TokenSource supplies app access tokens to Helix calls.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	// InvalidateAccessToken drops a token the upstream rejected.
	InvalidateAccessToken(ctx context.Context, accessToken string)
}

// HelixClient reads the game catalogue, live streams and archived videos
// with the application token.
type HelixClient struct {
	cfg    Config
	tr     *Transport
	tokens TokenSource
}

var (
	_ repository.GameCatalog  = (*HelixClient)(nil)
	_ repository.VideoCatalog = (*HelixClient)(nil)
)

func NewHelixClient(cfg Config, tr *Transport, tokens TokenSource) *HelixClient {
	return &HelixClient{cfg: cfg, tr: tr, tokens: tokens}
}

// SearchCategories searches games by name.
func (c *HelixClient) SearchCategories(ctx context.Context, query string, first int) ([]model.Game, error) {
	var games []model.Game
	err := c.call(ctx, EndpointSearchCategories, func(api *helix.Client) (helix.ResponseCommon, error) {
		resp, err := api.SearchCategories(&helix.SearchCategoriesParams{Query: query, First: first})
		if err != nil {
			return helix.ResponseCommon{}, err
		}
		games = make([]model.Game, 0, len(resp.Data.Categories))
		for _, cat := range resp.Data.Categories {
			games = append(games, model.Game{ID: cat.ID, Name: cat.Name, BoxArtURL: cat.BoxArtURL})
		}
		return resp.ResponseCommon, nil
	})
	if err != nil {
		return nil, err
	}
	return games, nil
}

// GetStreams lists live streams for a game, normalized as live videos.
func (c *HelixClient) GetStreams(ctx context.Context, vq repository.VideoQuery) (*repository.VideoPage, error) {
	page := &repository.VideoPage{}
	err := c.call(ctx, EndpointStreams, func(api *helix.Client) (helix.ResponseCommon, error) {
		resp, err := api.GetStreams(&helix.StreamsParams{
			GameIDs: []string{vq.GameID},
			First:   vq.First,
			After:   vq.After,
		})
		if err != nil {
			return helix.ResponseCommon{}, err
		}
		page.Videos = make([]model.Video, 0, len(resp.Data.Streams))
		for _, s := range resp.Data.Streams {
			page.Videos = append(page.Videos, streamToVideo(s))
		}
		page.Cursor = resp.Data.Pagination.Cursor
		return resp.ResponseCommon, nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// GetArchives lists archived broadcasts for a game.
func (c *HelixClient) GetArchives(ctx context.Context, vq repository.VideoQuery) (*repository.VideoPage, error) {
	page := &repository.VideoPage{}
	err := c.call(ctx, EndpointVideos, func(api *helix.Client) (helix.ResponseCommon, error) {
		resp, err := api.GetVideos(&helix.VideosParams{
			GameID: vq.GameID,
			First:  vq.First,
			After:  vq.After,
			Type:   "archive",
		})
		if err != nil {
			return helix.ResponseCommon{}, err
		}
		page.Videos = make([]model.Video, 0, len(resp.Data.Videos))
		for _, v := range resp.Data.Videos {
			page.Videos = append(page.Videos, archiveToVideo(v, vq.GameID))
		}
		page.Cursor = resp.Data.Pagination.Cursor
		return resp.ResponseCommon, nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func streamToVideo(s helix.Stream) model.Video {
	return model.Video{
		ID:           s.ID,
		Title:        s.Title,
		UserName:     s.UserName,
		URL:          channelBaseURL + s.UserLogin,
		ThumbnailURL: s.ThumbnailURL,
		ViewCount:    model.IntPtr(s.ViewerCount),
		Language:     s.Language,
		CreatedAt:    s.StartedAt,
		Duration:     model.LiveDuration,
		Type:         model.VideoTypeLive,
		GameID:       s.GameID,
		GameName:     s.GameName,
	}
}

func archiveToVideo(v helix.Video, gameID string) model.Video {
	// Unparseable timestamps stay zero rather than dropping the video.
	createdAt, _ := time.Parse(time.RFC3339, v.CreatedAt)
	return model.Video{
		ID:           v.ID,
		Title:        v.Title,
		UserName:     v.UserName,
		URL:          v.URL,
		ThumbnailURL: v.ThumbnailURL,
		ViewCount:    model.IntPtr(v.ViewCount),
		Language:     v.Language,
		CreatedAt:    createdAt,
		Duration:     v.Duration,
		Type:         model.VideoTypeArchive,
		GameID:       gameID,
	}
}

// call runs one app-token Helix request. A 401 drops the app token and
// retries once with a fresh one.
func (c *HelixClient) call(ctx context.Context, endpoint string, fn func(api *helix.Client) (helix.ResponseCommon, error)) error {
	refreshed := false
	for {
		token, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return err
		}

		api, err := newAPI(ctx, c.cfg, c.tr, token, "")
		if err != nil {
			return err
		}

		rc, err := fn(api)
		if err != nil {
			return fmt.Errorf("helix %s: %w", endpoint, err)
		}

		err = checkResponse(endpoint, rc, c.tr.clock.Now())
		if err == nil {
			return nil
		}
		if IsUnauthorized(err) && !refreshed {
			c.tokens.InvalidateAccessToken(ctx, token)
			refreshed = true
			continue
		}
		return fmt.Errorf("helix %s: %w", endpoint, err)
	}
}
