package repository

import (
	"context"

	"github.com/flozac77/StreamZilla/internal/domain/model"
)

// GameRepository defines the interface for the resolved games collection.
type GameRepository interface {
	// Upsert inserts the game or refreshes its name and box art by id.
	Upsert(ctx context.Context, game *model.Game) error

	// GetByID retrieves a game by its upstream identifier.
	// Returns nil and ErrGameNotFound if the game does not exist.
	GetByID(ctx context.Context, id string) (*model.Game, error)
}

// GameRecorder accepts resolved games for persistence.
// Callers treat it as fire-and-forget: a failure never fails a search.
type GameRecorder interface {
	RecordGame(ctx context.Context, game *model.Game) error
}
