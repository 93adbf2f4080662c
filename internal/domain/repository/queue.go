package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hszk-dev/fronttube/internal/domain/model"
)

// RefreshTask asks the worker to re-fetch an entity whose refresh failed.
type RefreshTask struct {
	ID         uuid.UUID  `json:"id"`
	Kind       model.Kind `json:"kind"`
	URL        string     `json:"url"`
	RetryCount int        `json:"retry_count"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
}

// NewRefreshTask builds a task for id.
func NewRefreshTask(id model.RemoteIdentity) RefreshTask {
	return RefreshTask{
		ID:         uuid.New(),
		Kind:       id.Kind(),
		URL:        id.URL(),
		EnqueuedAt: time.Now(),
	}
}

// Identity reconstructs the identity the task refers to.
func (t RefreshTask) Identity() (model.RemoteIdentity, error) {
	return model.NewRemoteIdentity(t.Kind, t.URL)
}

// RefreshQueue defines the interface for deferred refresh messaging.
// Implementations should be provided by the infrastructure layer (e.g., RabbitMQ).
type RefreshQueue interface {
	// PublishRefreshTask enqueues a deferred refresh.
	PublishRefreshTask(ctx context.Context, task RefreshTask) error

	// ConsumeRefreshTasks calls handler for each received task until ctx is done.
	ConsumeRefreshTasks(ctx context.Context, handler func(task RefreshTask) error) error

	// Close gracefully closes the connection to the message queue.
	Close() error
}
