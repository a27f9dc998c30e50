package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/flozac77/StreamZilla/internal/domain/model"
	"github.com/flozac77/StreamZilla/internal/domain/repository"
	"github.com/flozac77/StreamZilla/internal/infrastructure/memcache"
	"github.com/flozac77/StreamZilla/internal/infrastructure/metrics"
)

// GameResolver maps a free-text game name to an upstream category.
type GameResolver interface {
	// FindGame returns nil, nil when the name does not resolve.
	// Only token failures (*AuthError) are returned as errors.
	FindGame(ctx context.Context, name string) (*model.Game, error)
}

// GameResolverConfig holds configuration for GameResolver.
type GameResolverConfig struct {
	// MemoTTL is how long a resolved game is remembered.
	// Negative results are remembered for a tenth of it.
	MemoTTL time.Duration
}

// DefaultGameResolverConfig returns the default configuration.
func DefaultGameResolverConfig() GameResolverConfig {
	return GameResolverConfig{MemoTTL: time.Hour}
}

// memoEntry is a resolved game, or a not-found marker when game is nil.
type memoEntry struct {
	game *model.Game
}

type gameResolver struct {
	catalog  repository.GameCatalog
	recorder repository.GameRecorder
	memo     *memcache.TTLCache[string, memoEntry]

	notFoundTTL time.Duration
}

// NewGameResolver creates a GameResolver. recorder may be nil.
func NewGameResolver(
	catalog repository.GameCatalog,
	recorder repository.GameRecorder,
	clock clockwork.Clock,
	cfg GameResolverConfig,
) GameResolver {
	return &gameResolver{
		catalog:     catalog,
		recorder:    recorder,
		memo:        memcache.New[string, memoEntry](cfg.MemoTTL, clock),
		notFoundTTL: cfg.MemoTTL / 10,
	}
}

func (r *gameResolver) FindGame(ctx context.Context, name string) (*model.Game, error) {
	key := model.NormalizeGameName(name)
	if key == "" {
		return nil, nil
	}

	if entry, ok := r.memo.Get(key); ok {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusHit, metrics.CacheTypeMemory).Inc()
		return cloneGame(entry.game), nil
	}
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss, metrics.CacheTypeMemory).Inc()

	games, err := r.catalog.SearchCategories(ctx, strings.TrimSpace(name), 1)
	if err != nil {
		if isAuthError(err) {
			return nil, err
		}
		// Not memoized: the next request retries the upstream.
		slog.WarnContext(ctx, "game search failed, treating as not found",
			"game_name", name,
			"error", err,
		)
		return nil, nil
	}

	if len(games) == 0 {
		r.memo.SetWithTTL(key, memoEntry{}, r.notFoundTTL)
		return nil, nil
	}

	game := games[0]
	if r.recorder != nil {
		if err := r.recorder.RecordGame(ctx, &game); err != nil {
			slog.WarnContext(ctx, "failed to record game",
				"game_id", game.ID,
				"error", err,
			)
		}
	}

	r.memo.Set(key, memoEntry{game: &game})
	return cloneGame(&game), nil
}

func cloneGame(g *model.Game) *model.Game {
	if g == nil {
		return nil
	}
	c := *g
	return &c
}
