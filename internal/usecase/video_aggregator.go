package usecase

import (
	"context"
	"log/slog"

	"github.com/flozac77/StreamZilla/internal/domain/model"
	"github.com/flozac77/StreamZilla/internal/domain/repository"
	"github.com/flozac77/StreamZilla/internal/infrastructure/metrics"
)

// maxPageSize is the largest page the upstream serves.
const maxPageSize = 100

// Aggregation source names.
const (
	SourceStreams = "streams"
	SourceVideos  = "videos"
)

// VideoAggregator merges live streams and archived videos for a game.
type VideoAggregator interface {
	// FetchVideos returns at most limit de-duplicated, ranked videos and the
	// cursor of the next page. A failing source contributes nothing; only
	// token failures (*AuthError) are returned.
	FetchVideos(ctx context.Context, gameID string, limit int, page model.Pagination) ([]model.Video, model.Pagination, error)
}

type videoAggregator struct {
	catalog repository.VideoCatalog
}

// NewVideoAggregator creates a new VideoAggregator.
func NewVideoAggregator(catalog repository.VideoCatalog) VideoAggregator {
	return &videoAggregator{catalog: catalog}
}

// collector appends videos under a shared seen-id set and a size limit.
// The first writer of an id wins.
type collector struct {
	videos []model.Video
	seen   map[string]struct{}
	limit  int
}

func newCollector(limit int) *collector {
	return &collector{
		videos: make([]model.Video, 0, limit),
		seen:   make(map[string]struct{}, limit),
		limit:  limit,
	}
}

func (c *collector) add(videos []model.Video) {
	for _, v := range videos {
		if c.full() {
			return
		}
		if _, dup := c.seen[v.ID]; dup {
			continue
		}
		c.seen[v.ID] = struct{}{}
		c.videos = append(c.videos, v)
	}
}

func (c *collector) full() bool {
	return len(c.videos) >= c.limit
}

func (a *videoAggregator) FetchVideos(ctx context.Context, gameID string, limit int, page model.Pagination) ([]model.Video, model.Pagination, error) {
	if limit <= 0 {
		return []model.Video{}, model.Pagination{}, nil
	}

	var inbound string
	if page.Cursor != nil {
		inbound = *page.Cursor
	}

	c := newCollector(limit)
	var streamsCursor, videosCursor string

	// Live first, so a live entry wins over its archive twin.
	if page.Source != model.CursorSourceVideos {
		streams, err := a.catalog.GetStreams(ctx, repository.VideoQuery{
			GameID: gameID,
			First:  min(maxPageSize, limit),
			After:  inbound,
		})
		if err != nil {
			if isAuthError(err) {
				return nil, model.Pagination{}, err
			}
			a.sourceFailed(ctx, SourceStreams, gameID, err)
		} else {
			c.add(streams.Videos)
			streamsCursor = streams.Cursor
		}
	}

	if !c.full() {
		q := repository.VideoQuery{
			GameID: gameID,
			First:  min(maxPageSize, limit-len(c.videos)),
		}
		if page.Source == model.CursorSourceVideos {
			q.After = inbound
		}

		archives, err := a.catalog.GetArchives(ctx, q)
		if err != nil {
			if isAuthError(err) {
				return nil, model.Pagination{}, err
			}
			a.sourceFailed(ctx, SourceVideos, gameID, err)
		} else {
			c.add(archives.Videos)
			videosCursor = archives.Cursor
		}
	}

	model.RankVideos(c.videos)

	switch {
	case streamsCursor != "":
		return c.videos, model.NewPagination(streamsCursor, model.CursorSourceStreams), nil
	case videosCursor != "":
		return c.videos, model.NewPagination(videosCursor, model.CursorSourceVideos), nil
	default:
		return c.videos, model.Pagination{}, nil
	}
}

func (a *videoAggregator) sourceFailed(ctx context.Context, source, gameID string, err error) {
	metrics.SourceFailuresTotal.WithLabelValues(source).Inc()
	slog.WarnContext(ctx, "aggregation source failed, treating as empty",
		"game_id", gameID,
		"error", &UpstreamFetchError{Source: source, Err: err},
	)
}
