package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hszk-dev/fronttube/internal/app"
	"github.com/hszk-dev/fronttube/internal/config"
	"github.com/hszk-dev/fronttube/internal/domain/repository"
	"github.com/hszk-dev/fronttube/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	a, err := app.New(ctx, cfg, app.Options{RequireQueue: true})
	if err != nil {
		return err
	}
	defer a.Close()

	refreshSvc := usecase.NewRefreshService(a.Repo, usecase.RefreshServiceConfig{
		MaxRetries: cfg.Worker.MaxRetries,
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// WaitGroup to track in-flight tasks
	var wg sync.WaitGroup

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting worker, consuming refresh tasks")
		err := a.Queue.ConsumeRefreshTasks(ctx, func(task repository.RefreshTask) error {
			wg.Add(1)
			defer wg.Done()

			logger.Debug("processing task",
				slog.String("task_id", task.ID.String()),
				slog.String("kind", task.Kind.String()),
				slog.String("url", task.URL),
				slog.Int("retry_count", task.RetryCount),
			)

			if err := refreshSvc.ProcessTask(ctx, task); err != nil {
				logger.Warn("task processing failed",
					slog.String("task_id", task.ID.String()),
					slog.String("url", task.URL),
					slog.Int("retry_count", task.RetryCount),
					slog.String("error", err.Error()),
				)
				return err
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("consumer error: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down worker", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	// Stop consuming new messages
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("all in-flight tasks completed")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, some tasks may not have completed")
	}

	logger.Info("worker stopped")
	return nil
}
