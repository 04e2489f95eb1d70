package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/phrazzld/docqueue/internal/api"
	"github.com/phrazzld/docqueue/internal/config"
	"github.com/phrazzld/docqueue/internal/platform/logger"
	"github.com/phrazzld/docqueue/internal/queue"
	"github.com/phrazzld/docqueue/internal/webhook"
)

// application holds the shared dependencies of the server and releases
// them on shutdown.
type application struct {
	config  *config.Config
	logger  *slog.Logger
	backend *backend
	storage *queue.Storage
}

// newApplication opens the task store, creates the queue storage and
// registers the execution handlers.
func newApplication(ctx context.Context, cfg *config.Config, log *slog.Logger) (*application, error) {
	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open task store: %w", err)
	}

	app, err := newApplicationWithDatabase(cfg, log, b)
	if err != nil {
		b.close()
		return nil, err
	}
	return app, nil
}

func newApplicationWithDatabase(cfg *config.Config, log *slog.Logger, b *backend) (*application, error) {
	retryDelay := cfg.Queue.RetryDelay()
	systemName := cfg.Queue.SystemName
	queueLogger := logger.FromSlog(log.With("component", "queue"))

	storage, err := queue.New(queue.Options{
		Database:       queue.StaticDatabase(b.db),
		Logger:         func() logger.Logger { return queueLogger },
		SystemName:     func() string { return systemName },
		CollectionName: cfg.Queue.CollectionName,
		RetryDelay:     &retryDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create queue storage: %w", err)
	}

	app := &application{
		config:  cfg,
		logger:  log,
		backend: b,
		storage: storage,
	}
	if err := app.registerHandlers(); err != nil {
		_ = storage.Close()
		return nil, err
	}

	log.Info("application initialized", "collection", storage.CollectionName())
	return app, nil
}

// registerHandlers installs the logging handler and, when a URL is
// configured, the webhook handler after it.
func (app *application) registerHandlers() error {
	app.storage.RegisterExecutionHandler(loggingHandler(app.logger.With("component", "executor")))

	if app.config.Webhook.URL == "" {
		return nil
	}
	hook, err := webhook.NewHandler(webhook.Config{
		URL:     app.config.Webhook.URL,
		Timeout: app.config.Webhook.Timeout(),
	})
	if err != nil {
		return fmt.Errorf("failed to create webhook handler: %w", err)
	}
	app.storage.RegisterExecutionHandler(hook.Execute)
	app.logger.Info("webhook handler registered")
	return nil
}

// loggingHandler records every attempt. It never fails.
func loggingHandler(log *slog.Logger) queue.ExecutionHandler {
	return func(ctx context.Context, exec queue.Execution) error {
		log.InfoContext(ctx, "executing task",
			"task_key", exec.TaskKey,
			"task_uuid", exec.TaskUUID)
		return nil
	}
}

// StopAll marks every enqueued task as stopped.
func (app *application) StopAll(ctx context.Context) error {
	n, err := app.storage.StopAllEnqueuedTasksCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to stop enqueued tasks: %w", err)
	}
	app.logger.Info("stopped enqueued tasks", "modified", n)
	return nil
}

// Run resubmits unfinished tasks and serves the HTTP API until ctx is done.
func (app *application) Run(ctx context.Context) error {
	if err := app.requeueRemaining(ctx); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", app.config.Server.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", app.config.Server.Port, err)
	}

	if err := app.startHTTPServer(ctx, ln, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// requeueRemaining resubmits every task left unfinished by a previous process.
func (app *application) requeueRemaining(ctx context.Context) error {
	tasks, err := app.storage.EnqueueRemainingTasks(ctx)
	if err != nil {
		return fmt.Errorf("failed to requeue remaining tasks: %w", err)
	}
	app.logger.Info("requeued remaining tasks", "count", len(tasks))
	return nil
}

func (app *application) setupRouter() http.Handler {
	return api.NewRouter(api.NewTaskHandler(app.storage))
}

// cleanup closes the queue storage and then the task store.
func (app *application) cleanup() {
	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			app.logger.Error("failed to close queue storage", "error", err)
		}
	}
	if app.backend != nil {
		app.backend.close()
	}
	app.logger.Info("application shutdown completed")
}
