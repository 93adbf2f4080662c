package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hszk-dev/fronttube/internal/domain/model"
	"github.com/hszk-dev/fronttube/internal/domain/repository"
	"github.com/hszk-dev/fronttube/internal/infrastructure/metrics"
)

const (
	// DefaultMaxRetries is the default number of redeliveries before a task is dropped.
	DefaultMaxRetries = 3
)

// errRefreshFailed marks a task whose refresh should be retried.
var errRefreshFailed = errors.New("refresh failed")

// RefreshServiceConfig holds configuration for RefreshService.
type RefreshServiceConfig struct {
	// MaxRetries is the maximum number of retry attempts before a task is dropped.
	MaxRetries int
}

// DefaultRefreshServiceConfig returns the default configuration.
func DefaultRefreshServiceConfig() RefreshServiceConfig {
	return RefreshServiceConfig{
		MaxRetries: DefaultMaxRetries,
	}
}

// Refresher forces a provider fetch for an identity of any kind.
// *DataRepository implements it.
type Refresher interface {
	Refresh(ctx context.Context, id model.RemoteIdentity) (model.CacheResult[model.Entity], error)
}

// RefreshService defines the interface for deferred refresh processing.
type RefreshService interface {
	// ProcessTask handles a refresh task from the message queue.
	// Returns nil on success or permanent failure (max retries exceeded, bad task).
	// Returns error for transient failures that should trigger a retry.
	ProcessTask(ctx context.Context, task repository.RefreshTask) error
}

type refreshService struct {
	refresher  Refresher
	maxRetries int
}

// NewRefreshService creates a new RefreshService instance.
func NewRefreshService(refresher Refresher, cfg RefreshServiceConfig) RefreshService {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return &refreshService{
		refresher:  refresher,
		maxRetries: cfg.MaxRetries,
	}
}

// ProcessTask refreshes the entity named by task.
// A refresh that ends in StatusRefreshed succeeds. A result carrying
// ErrNotFound means the upstream no longer has the entity: the stale row is
// served as a degraded hit (or the result is a miss when no row is left), the
// row is kept and the task is acknowledged. Anything else is retried.
func (s *refreshService) ProcessTask(ctx context.Context, task repository.RefreshTask) error {
	// Check if max retries exceeded - drop and return nil (ack the message)
	if task.RetryCount >= s.maxRetries {
		metrics.RefreshTasksTotal.WithLabelValues(metrics.RefreshDropped).Inc()
		slog.Error("dropping refresh task after max retries",
			"task_id", task.ID,
			"kind", task.Kind.String(),
			"url", task.URL,
			"retry_count", task.RetryCount,
		)
		return nil
	}

	id, err := task.Identity()
	if err != nil {
		// Malformed task - retrying cannot help
		metrics.RefreshTasksTotal.WithLabelValues(metrics.RefreshDropped).Inc()
		slog.Error("dropping invalid refresh task",
			"task_id", task.ID,
			"error", err,
		)
		return nil
	}

	res, err := s.refresher.Refresh(ctx, id)
	if err != nil {
		metrics.RefreshTasksTotal.WithLabelValues(metrics.RefreshRetried).Inc()
		return fmt.Errorf("refresh %s: %w", id, err)
	}

	switch {
	case res.Status == model.StatusRefreshed:
		metrics.RefreshTasksTotal.WithLabelValues(metrics.RefreshSucceeded).Inc()
		return nil
	case errors.Is(res.Err, repository.ErrNotFound):
		metrics.RefreshTasksTotal.WithLabelValues(metrics.RefreshSucceeded).Inc()
		slog.Warn("refresh target no longer exists upstream",
			"kind", id.Kind().String(),
			"url", id.URL(),
			"status", res.Status.String(),
		)
		return nil
	default:
		metrics.RefreshTasksTotal.WithLabelValues(metrics.RefreshRetried).Inc()
		return fmt.Errorf("%w: %s: %s", errRefreshFailed, id, res.ErrorMessage())
	}
}
