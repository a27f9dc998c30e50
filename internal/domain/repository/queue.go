package repository

import (
	"context"

	"github.com/flozac77/StreamZilla/internal/domain/model"
)

// GameRecordTask is a request to persist a resolved game asynchronously.
type GameRecordTask struct {
	Game       model.Game `json:"game"`
	RetryCount int        `json:"retry_count"`
}

// MessageQueue defines the interface for message queue operations.
// Implementations should be provided by the infrastructure layer (e.g., RabbitMQ).
type MessageQueue interface {
	// PublishGameRecord sends a game record task to the queue.
	// Used by the API server when games are persisted through the worker.
	PublishGameRecord(ctx context.Context, task GameRecordTask) error

	// ConsumeGameRecords starts consuming game record tasks from the queue.
	// The handler function is called for each received task.
	// Used by the worker service.
	ConsumeGameRecords(ctx context.Context, handler func(task GameRecordTask) error) error

	// Close gracefully closes the connection to the message queue.
	Close() error
}
