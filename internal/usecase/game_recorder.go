package usecase

import (
	"context"
	"fmt"

	"github.com/flozac77/StreamZilla/internal/domain/model"
	"github.com/flozac77/StreamZilla/internal/domain/repository"
)

// queuedGameRecorder hands resolved games to the worker instead of writing them inline.
type queuedGameRecorder struct {
	queue repository.MessageQueue
}

// NewQueuedGameRecorder returns a GameRecorder that publishes to mq.
func NewQueuedGameRecorder(mq repository.MessageQueue) repository.GameRecorder {
	return &queuedGameRecorder{queue: mq}
}

func (r *queuedGameRecorder) RecordGame(ctx context.Context, game *model.Game) error {
	if err := r.queue.PublishGameRecord(ctx, repository.GameRecordTask{Game: *game}); err != nil {
		return fmt.Errorf("publish game record: %w", err)
	}
	return nil
}
