package usecase

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/flozac77/StreamZilla/internal/domain/model"
	"github.com/flozac77/StreamZilla/internal/infrastructure/cache"
	"github.com/flozac77/StreamZilla/internal/infrastructure/metrics"
)

// SearchInput contains the parameters of a game search.
type SearchInput struct {
	GameName     string
	Limit        int
	Cursor       string
	CursorSource model.CursorSource
	UseCache     bool
}

// SearchService defines the interface for the video search use case.
type SearchService interface {
	// SearchVideosByGame returns live streams and archives for a game.
	// An unknown game yields an empty result, not an error.
	SearchVideosByGame(ctx context.Context, input SearchInput) (*model.SearchResult, error)

	// ClearCache drops every cached search result.
	ClearCache(ctx context.Context) (int, error)
}

// SearchServiceConfig holds configuration for SearchService.
type SearchServiceConfig struct {
	// DefaultLimit is used when the caller does not set a limit.
	DefaultLimit int
}

// DefaultSearchServiceConfig returns the default configuration.
func DefaultSearchServiceConfig() SearchServiceConfig {
	return SearchServiceConfig{DefaultLimit: maxPageSize}
}

type searchService struct {
	resolver   GameResolver
	aggregator VideoAggregator
	cache      cache.SearchCache
	clock      clockwork.Clock
	sfGroup    singleflight.Group

	defaultLimit int
}

// NewSearchService creates a new SearchService.
func NewSearchService(
	resolver GameResolver,
	aggregator VideoAggregator,
	searchCache cache.SearchCache,
	clock clockwork.Clock,
	cfg SearchServiceConfig,
) SearchService {
	return &searchService{
		resolver:     resolver,
		aggregator:   aggregator,
		cache:        searchCache,
		clock:        clock,
		defaultLimit: cfg.DefaultLimit,
	}
}

func (s *searchService) SearchVideosByGame(ctx context.Context, input SearchInput) (*model.SearchResult, error) {
	input, err := s.normalize(input)
	if err != nil {
		return nil, err
	}

	// Only first pages are cached.
	if !input.UseCache || input.Cursor != "" {
		return s.search(ctx, input)
	}

	key := model.NormalizeGameName(input.GameName) + ":" + strconv.Itoa(input.Limit)
	result, err, shared := s.sfGroup.Do(key, func() (any, error) {
		return s.searchWithCache(ctx, input)
	})

	if shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightGroupSearch, metrics.SingleflightShared).Inc()
	} else {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightGroupSearch, metrics.SingleflightInitiated).Inc()
	}

	if err != nil {
		return nil, err
	}
	return result.(*model.SearchResult), nil
}

func (s *searchService) normalize(input SearchInput) (SearchInput, error) {
	input.GameName = strings.TrimSpace(input.GameName)
	if input.GameName == "" {
		return input, ErrEmptyGameName
	}

	if input.Limit == 0 {
		input.Limit = s.defaultLimit
	}
	if input.Limit < 1 || input.Limit > maxPageSize {
		return input, ErrInvalidLimit
	}

	if !input.CursorSource.IsValid() {
		return input, ErrInvalidCursorSource
	}

	return input, nil
}

// searchWithCache implements the cache-aside pattern.
func (s *searchService) searchWithCache(ctx context.Context, input SearchInput) (*model.SearchResult, error) {
	cached, err := s.cache.Get(ctx, input.GameName, input.Limit)
	if err != nil {
		slog.WarnContext(ctx, "search cache get failed, falling back to upstream",
			"game_name", input.GameName,
			"error", err,
		)
	}
	if cached != nil {
		metrics.SearchRequestsTotal.WithLabelValues(metrics.SearchResultCached).Inc()
		// The entry is shared across spellings of the name.
		cached.GameName = input.GameName
		return cached, nil
	}

	result, err := s.search(ctx, input)
	if err != nil {
		return nil, err
	}

	if result.Game != nil {
		if err := s.cache.Save(ctx, input.GameName, input.Limit, result); err != nil {
			slog.WarnContext(ctx, "failed to cache search result",
				"game_name", input.GameName,
				"error", err,
			)
		}
	}

	return result, nil
}

func (s *searchService) search(ctx context.Context, input SearchInput) (*model.SearchResult, error) {
	game, err := s.resolver.FindGame(ctx, input.GameName)
	if err != nil {
		return nil, s.fail(ctx, input.GameName, err)
	}

	if game == nil {
		metrics.SearchRequestsTotal.WithLabelValues(metrics.SearchResultNotFound).Inc()
		return model.EmptySearchResult(input.GameName, s.clock.Now()), nil
	}

	page := model.NewPagination(input.Cursor, input.CursorSource)
	videos, pagination, err := s.aggregator.FetchVideos(ctx, game.ID, input.Limit, page)
	if err != nil {
		return nil, s.fail(ctx, input.GameName, err)
	}

	for i := range videos {
		if videos[i].GameName == "" {
			videos[i].GameName = game.Name
		}
		if videos[i].GameID == "" {
			videos[i].GameID = game.ID
		}
	}

	metrics.SearchRequestsTotal.WithLabelValues(metrics.SearchResultFound).Inc()
	return model.NewSearchResult(input.GameName, game, videos, pagination, s.clock.Now()), nil
}

// fail passes token failures through and wraps everything else.
func (s *searchService) fail(ctx context.Context, gameName string, err error) error {
	metrics.SearchRequestsTotal.WithLabelValues(metrics.SearchResultError).Inc()
	if isAuthError(err) {
		return err
	}

	slog.ErrorContext(ctx, "search failed",
		"game_name", gameName,
		"error", err,
	)
	return &SearchError{GameName: gameName, Err: err}
}

func (s *searchService) ClearCache(ctx context.Context) (int, error) {
	return s.cache.Clear(ctx)
}
