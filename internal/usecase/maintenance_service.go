package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/flozac77/StreamZilla/internal/domain/repository"
	"github.com/flozac77/StreamZilla/internal/infrastructure/metrics"
)

const (
	// DefaultMaxRetries is the default number of attempts before a game record is dropped.
	DefaultMaxRetries = 3
)

// MaintenanceServiceConfig holds configuration for MaintenanceService.
type MaintenanceServiceConfig struct {
	// TokenRetention is how long invalid tokens are kept before purging.
	TokenRetention time.Duration
	// MaxRetries is the number of failed attempts after which a game record is dropped.
	MaxRetries int
}

// DefaultMaintenanceServiceConfig returns the default configuration.
func DefaultMaintenanceServiceConfig() MaintenanceServiceConfig {
	return MaintenanceServiceConfig{
		TokenRetention: 7 * 24 * time.Hour,
		MaxRetries:     DefaultMaxRetries,
	}
}

// MaintenanceService runs the background jobs of the worker process.
type MaintenanceService interface {
	// PurgeOldTokens deletes invalid tokens past the retention window.
	PurgeOldTokens(ctx context.Context) (int64, error)

	// ProcessGameRecord persists a game received from the queue.
	// Returns nil on success or when the task has exhausted its retries.
	// Returns error for transient failures that should trigger a retry.
	ProcessGameRecord(ctx context.Context, task repository.GameRecordTask) error
}

type maintenanceService struct {
	tokens repository.TokenRepository
	games  repository.GameRepository
	clock  clockwork.Clock

	retention  time.Duration
	maxRetries int
}

// NewMaintenanceService creates a new MaintenanceService.
func NewMaintenanceService(
	tokens repository.TokenRepository,
	games repository.GameRepository,
	clock clockwork.Clock,
	cfg MaintenanceServiceConfig,
) MaintenanceService {
	return &maintenanceService{
		tokens:     tokens,
		games:      games,
		clock:      clock,
		retention:  cfg.TokenRetention,
		maxRetries: cfg.MaxRetries,
	}
}

func (s *maintenanceService) PurgeOldTokens(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-s.retention)

	n, err := s.tokens.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		metrics.TokenOperationsTotal.WithLabelValues(metrics.TokenOpPurge, metrics.TokenResultError).Inc()
		return 0, fmt.Errorf("purge tokens: %w", err)
	}

	metrics.TokenOperationsTotal.WithLabelValues(metrics.TokenOpPurge, metrics.TokenResultSuccess).Inc()
	slog.InfoContext(ctx, "purged invalid tokens",
		"count", n,
		"cutoff", cutoff,
	)
	return n, nil
}

func (s *maintenanceService) ProcessGameRecord(ctx context.Context, task repository.GameRecordTask) error {
	if task.RetryCount >= s.maxRetries {
		slog.ErrorContext(ctx, "dropping game record after max retries",
			"game_id", task.Game.ID,
			"retry_count", task.RetryCount,
		)
		return nil
	}

	if task.Game.ID == "" {
		slog.WarnContext(ctx, "dropping game record without id", "game_name", task.Game.Name)
		return nil
	}

	game := task.Game
	if err := s.games.Upsert(ctx, &game); err != nil {
		return fmt.Errorf("upsert game: %w", err)
	}

	slog.DebugContext(ctx, "game recorded", "game_id", game.ID, "game_name", game.Name)
	return nil
}
