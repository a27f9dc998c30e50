package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/flozac77/StreamZilla/internal/domain/model"
	"github.com/flozac77/StreamZilla/internal/infrastructure/metrics"
)

const (
	// searchCacheKeyPrefix is the prefix for search result keys in Redis.
	searchCacheKeyPrefix = "search:"

	clearScanCount = 100
)

// gameJSON and videoJSON decouple the cached layout from the API's JSON tags.
type gameJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	BoxArtURL string `json:"box_art_url"`
}

type videoJSON struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	UserName     string `json:"user_name"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url"`
	ViewCount    *int   `json:"view_count"`
	Language     string `json:"language"`
	CreatedAt    string `json:"created_at"`
	Duration     string `json:"duration"`
	Type         string `json:"type"`
	GameID       string `json:"game_id"`
	GameName     string `json:"game_name"`
}

// searchEntryJSON is one cached result. CreatedAt is the cache write time and
// is the only timestamp staleness is computed from.
type searchEntryJSON struct {
	GameName     string      `json:"game_name"`
	Limit        int         `json:"limit"`
	Game         *gameJSON   `json:"game"`
	Videos       []videoJSON `json:"videos"`
	LastUpdated  string      `json:"last_updated"`
	Cursor       *string     `json:"cursor"`
	CursorSource string      `json:"cursor_source"`
	CreatedAt    string      `json:"created_at"`
}

// RedisSearchCache implements SearchCache using Redis as the backing store.
type RedisSearchCache struct {
	client   *redis.Client
	clock    clockwork.Clock
	ttl      time.Duration
	backstop time.Duration
}

// NewRedisSearchCache creates a search cache whose entries are fresh for ttl.
// Keys additionally expire in Redis after backstop.
func NewRedisSearchCache(client *redis.Client, clock clockwork.Clock, ttl, backstop time.Duration) *RedisSearchCache {
	return &RedisSearchCache{
		client:   client,
		clock:    clock,
		ttl:      ttl,
		backstop: backstop,
	}
}

// Get retrieves a search result from Redis.
// Stale entries and entries without a write time are deleted and reported as a miss.
func (c *RedisSearchCache) Get(ctx context.Context, gameName string, limit int) (*model.SearchResult, error) {
	key := buildKey(gameName)

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss, metrics.CacheTypeRedis).Inc()
			return nil, nil
		}
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry searchEntryJSON
	if err := json.Unmarshal(data, &entry); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return nil, fmt.Errorf("deserialize search result: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, entry.CreatedAt)
	if err != nil || c.clock.Now().Sub(createdAt) > c.ttl {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusStale, metrics.CacheTypeRedis).Inc()
		if delErr := c.client.Del(ctx, key).Err(); delErr != nil {
			slog.WarnContext(ctx, "failed to delete stale search cache entry",
				"key", key,
				"error", delErr,
			)
		}
		return nil, nil
	}

	result, err := entry.toModel()
	if err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return nil, fmt.Errorf("deserialize search result: %w", err)
	}

	if !result.Covers(entry.Limit, limit) {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss, metrics.CacheTypeRedis).Inc()
		return nil, nil
	}

	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusHit, metrics.CacheTypeRedis).Inc()
	return result.Truncate(limit), nil
}

// Save deletes any previous entry for the game name and writes a fresh one.
func (c *RedisSearchCache) Save(ctx context.Context, gameName string, limit int, result *model.SearchResult) error {
	key := buildKey(gameName)

	data, err := json.Marshal(newSearchEntry(result, limit, c.clock.Now()))
	if err != nil {
		return fmt.Errorf("serialize search result: %w", err)
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.backstop).Err(); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusSuccess, metrics.CacheTypeRedis).Inc()
	return nil
}

// Delete removes a search result from Redis.
func (c *RedisSearchCache) Delete(ctx context.Context, gameName string) error {
	if err := c.client.Del(ctx, buildKey(gameName)).Err(); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpDelete, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpDelete, metrics.CacheStatusSuccess, metrics.CacheTypeRedis).Inc()
	return nil
}

// Clear deletes every search key using SCAN so Redis is never blocked.
func (c *RedisSearchCache) Clear(ctx context.Context) (int, error) {
	deleted := 0
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, searchCacheKeyPrefix+"*", clearScanCount).Result()
		if err != nil {
			metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpClear, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
			return deleted, fmt.Errorf("redis scan: %w", err)
		}

		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpClear, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
				return deleted, fmt.Errorf("redis del: %w", err)
			}
			deleted += int(n)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpClear, metrics.CacheStatusSuccess, metrics.CacheTypeRedis).Inc()
	return deleted, nil
}

func buildKey(gameName string) string {
	return searchCacheKeyPrefix + model.NormalizeGameName(gameName)
}

func newSearchEntry(r *model.SearchResult, limit int, now time.Time) searchEntryJSON {
	entry := searchEntryJSON{
		GameName:     r.GameName,
		Limit:        limit,
		Videos:       make([]videoJSON, 0, len(r.Videos)),
		LastUpdated:  r.LastUpdated.Format(time.RFC3339Nano),
		Cursor:       r.Pagination.Cursor,
		CursorSource: string(r.Pagination.Source),
		CreatedAt:    now.Format(time.RFC3339Nano),
	}
	if r.Game != nil {
		entry.Game = &gameJSON{ID: r.Game.ID, Name: r.Game.Name, BoxArtURL: r.Game.BoxArtURL}
	}
	for _, v := range r.Videos {
		entry.Videos = append(entry.Videos, videoJSON{
			ID:           v.ID,
			Title:        v.Title,
			UserName:     v.UserName,
			URL:          v.URL,
			ThumbnailURL: v.ThumbnailURL,
			ViewCount:    v.ViewCount,
			Language:     v.Language,
			CreatedAt:    v.CreatedAt.Format(time.RFC3339Nano),
			Duration:     v.Duration,
			Type:         v.Type.String(),
			GameID:       v.GameID,
			GameName:     v.GameName,
		})
	}
	return entry
}

func (e searchEntryJSON) toModel() (*model.SearchResult, error) {
	lastUpdated, err := time.Parse(time.RFC3339Nano, e.LastUpdated)
	if err != nil {
		return nil, fmt.Errorf("parse last_updated: %w", err)
	}

	var game *model.Game
	if e.Game != nil {
		game = &model.Game{ID: e.Game.ID, Name: e.Game.Name, BoxArtURL: e.Game.BoxArtURL}
	}

	videos := make([]model.Video, 0, len(e.Videos))
	for _, v := range e.Videos {
		createdAt, err := time.Parse(time.RFC3339Nano, v.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse video %s created_at: %w", v.ID, err)
		}
		videos = append(videos, model.Video{
			ID:           v.ID,
			Title:        v.Title,
			UserName:     v.UserName,
			URL:          v.URL,
			ThumbnailURL: v.ThumbnailURL,
			ViewCount:    v.ViewCount,
			Language:     v.Language,
			CreatedAt:    createdAt,
			Duration:     v.Duration,
			Type:         model.VideoType(v.Type),
			GameID:       v.GameID,
			GameName:     v.GameName,
		})
	}

	pagination := model.Pagination{Cursor: e.Cursor, Source: model.CursorSource(e.CursorSource)}
	return model.NewSearchResult(e.GameName, game, videos, pagination, lastUpdated), nil
}

// Compile-time verification that RedisSearchCache implements SearchCache.
var _ SearchCache = (*RedisSearchCache)(nil)
