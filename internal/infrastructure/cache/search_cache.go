package cache

import (
	"context"

	"github.com/flozac77/StreamZilla/internal/domain/model"
)

// SearchCache stores complete aggregated search results keyed by game name.
// Implementations should handle serialization/deserialization transparently.
type SearchCache interface {
	// Get returns the cached result truncated to limit videos.
	// Returns nil, nil on a miss, including entries older than the TTL and
	// entries fetched with a smaller limit that may be hiding videos.
	Get(ctx context.Context, gameName string, limit int) (*model.SearchResult, error)

	// Save replaces any cached result for the game name. limit is the page
	// size the result was fetched with.
	Save(ctx context.Context, gameName string, limit int, result *model.SearchResult) error

	// Delete removes the cached result for the game name.
	// Returns nil if nothing was cached.
	Delete(ctx context.Context, gameName string) error

	// Clear removes every cached search result and returns how many were dropped.
	Clear(ctx context.Context) (int, error)
}
