package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/flozac77/StreamZilla/internal/domain/model"
	"github.com/flozac77/StreamZilla/internal/domain/repository"
	"github.com/flozac77/StreamZilla/internal/infrastructure/metrics"
)

// GameRepository implements repository.GameRepository using PostgreSQL.
// It also satisfies repository.GameRecorder for direct persistence.
type GameRepository struct {
	db  DBTX
	now func() time.Time
}

// NewGameRepository creates a new GameRepository instance.
func NewGameRepository(db DBTX) *GameRepository {
	return &GameRepository{db: db, now: time.Now}
}

// Upsert inserts the game or refreshes its name and box art.
func (r *GameRepository) Upsert(ctx context.Context, game *model.Game) error {
	const query = `
		INSERT INTO games (id, name, box_art_url, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    box_art_url = EXCLUDED.box_art_url,
		    updated_at = EXCLUDED.updated_at
	`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryInsert, metrics.TableGames).Inc()

	_, err := r.db.Exec(ctx, query, game.ID, game.Name, game.BoxArtURL, r.now())
	if err != nil {
		return fmt.Errorf("failed to upsert game: %w", err)
	}

	return nil
}

// GetByID retrieves a game by its upstream identifier.
func (r *GameRepository) GetByID(ctx context.Context, id string) (*model.Game, error) {
	const query = `SELECT id, name, box_art_url FROM games WHERE id = $1`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, metrics.TableGames).Inc()

	var game model.Game
	if err := r.db.QueryRow(ctx, query, id).Scan(&game.ID, &game.Name, &game.BoxArtURL); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to get game by ID: %w", err)
	}

	return &game, nil
}

// RecordGame persists a resolved game synchronously.
func (r *GameRepository) RecordGame(ctx context.Context, game *model.Game) error {
	return r.Upsert(ctx, game)
}

var (
	_ repository.GameRepository = (*GameRepository)(nil)
	_ repository.GameRecorder   = (*GameRepository)(nil)
)
