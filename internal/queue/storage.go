package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/docqueue/internal/platform/logger"
)

const (
	// DefaultCollectionName is the collection task documents live in.
	DefaultCollectionName = "queueTasks"

	// DefaultRetryDelay is how long a failed task waits before its next attempt.
	DefaultRetryDelay = 10000 * time.Millisecond

	// SystemNameEnv is read for the system name when no custom resolver is given.
	SystemNameEnv = "POD_NAME"
)

// Options configures a Storage. Only Database is required.
type Options struct {
	// Database resolves the backing store for each operation.
	Database DatabaseAccessor

	// Logger returns the logger to write to. Defaults to slog.Default().
	Logger func() logger.Logger

	// SystemName identifies this process in createdBy, updatedBy and
	// occurredIn. Defaults to the POD_NAME environment variable.
	SystemName func() string

	// Scheduler runs attempts. Defaults to GoScheduler.
	Scheduler Scheduler

	// CollectionName defaults to DefaultCollectionName.
	CollectionName string

	// RetryDelay defaults to DefaultRetryDelay. Zero retries immediately.
	RetryDelay *time.Duration
}

// Storage is a QueueStorage backed by a document collection.
type Storage struct {
	getDatabase    DatabaseAccessor
	getLogger      func() logger.Logger
	getSystemName  func() string
	scheduler      Scheduler
	collectionName string
	retryDelay     time.Duration

	mu       sync.RWMutex
	handlers []ExecutionHandler
	runs     map[int64]*taskRun // live runs by document ID
	closed   bool

	// ctx is handed to execution handlers and cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc
}

var _ QueueStorage = (*Storage)(nil)

// New validates opts and creates a Storage.
func New(opts Options) (*Storage, error) {
	if opts.Database == nil {
		return nil, fmt.Errorf("%w: Database accessor is required", ErrInvalidOptions)
	}

	collectionName := DefaultCollectionName
	if opts.CollectionName != "" {
		collectionName = strings.TrimSpace(opts.CollectionName)
		if collectionName == "" {
			return nil, fmt.Errorf("%w: CollectionName must not be blank", ErrInvalidOptions)
		}
	}

	retryDelay := DefaultRetryDelay
	if opts.RetryDelay != nil {
		if *opts.RetryDelay < 0 {
			return nil, fmt.Errorf("%w: RetryDelay must not be negative, got %s", ErrInvalidOptions, *opts.RetryDelay)
		}
		retryDelay = *opts.RetryDelay
	}

	getSystemName := func() string {
		return strings.TrimSpace(os.Getenv(SystemNameEnv))
	}
	if opts.SystemName != nil {
		custom := opts.SystemName
		getSystemName = func() string {
			return strings.TrimSpace(custom())
		}
	}

	getLogger := func() logger.Logger {
		return logger.FromSlog(slog.Default())
	}
	if opts.Logger != nil {
		custom := opts.Logger
		getLogger = func() logger.Logger {
			if l := custom(); l != nil {
				return l
			}
			return logger.Discard
		}
	}

	scheduler := opts.Scheduler
	if scheduler == nil {
		scheduler = GoScheduler{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Storage{
		getDatabase:    opts.Database,
		getLogger:      getLogger,
		getSystemName:  getSystemName,
		scheduler:      scheduler,
		collectionName: collectionName,
		retryDelay:     retryDelay,
		runs:           make(map[int64]*taskRun),
		ctx:            ctx,
		cancel:         cancel,
	}, nil
}

// RegisterExecutionHandler appends h to the handlers run for every attempt.
// Handlers run in registration order.
func (s *Storage) RegisterExecutionHandler(h ExecutionHandler) {
	if h == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

func (s *Storage) executionHandlers() []ExecutionHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	handlers := make([]ExecutionHandler, len(s.handlers))
	copy(handlers, s.handlers)
	return handlers
}

// CollectionName returns the name of the collection tasks are stored in.
func (s *Storage) CollectionName() string {
	return s.collectionName
}

// SystemName returns the normalized name of this process, possibly empty.
func (s *Storage) SystemName() string {
	return s.getSystemName()
}

// withTaskCollection resolves the database and runs action against the task collection.
func (s *Storage) withTaskCollection(ctx context.Context, action func(Collection) error) error {
	db, err := s.getDatabase(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve database: %w", err)
	}
	if db == nil {
		return errors.New("failed to resolve database: accessor returned nil")
	}
	return action(db.Collection(s.collectionName))
}

// EnqueueTask creates a task document and schedules its first attempt.
// Handler failures are never reported here; the call returns before the
// attempt runs.
func (s *Storage) EnqueueTask(ctx context.Context, opts EnqueueOptions) (TaskContext, error) {
	if strings.TrimSpace(opts.Key) == "" {
		return TaskContext{}, fmt.Errorf("%w: key must not be empty", ErrInvalidTask)
	}
	if s.isClosed() {
		return TaskContext{}, ErrClosed
	}

	data := opts.Data.Clone()
	if data == nil {
		data = Data{}
	}

	doc := &Document{
		Key:       opts.Key,
		UUID:      uuid.NewString(),
		Data:      data,
		Status:    StatusCreated,
		Errors:    []ErrorRecord{},
		CreatedAt: time.Now().UTC(),
		CreatedBy: s.getSystemName(),
	}

	err := s.withTaskCollection(ctx, func(c Collection) error {
		return c.InsertOne(ctx, doc)
	})
	if err != nil {
		return TaskContext{}, fmt.Errorf("failed to insert task: %w", err)
	}

	if _, err := s.submit(doc); err != nil {
		return TaskContext{}, err
	}

	s.getLogger().Info("task enqueued",
		"task_id", doc.ID,
		"task_uuid", doc.UUID,
		"task_key", doc.Key)

	return contextFromDocument(doc), nil
}

// EnqueueRemainingTasks resubmits every task that is not running and has
// not reached a terminal status, oldest first. Documents that already have
// a live run in this process keep it and are only reported, so calling this
// again never starts a second retry loop for the same task. Nothing prevents
// two processes from picking up the same document.
func (s *Storage) EnqueueRemainingTasks(ctx context.Context) ([]TaskContext, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	var docs []*Document
	err := s.withTaskCollection(ctx, func(c Collection) error {
		var err error
		docs, err = c.Find(ctx, Filter{
			ExcludeStatuses: append(terminalStatuses(), StatusRunning),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find remaining tasks: %w", err)
	}

	log := s.getLogger()
	result := make([]TaskContext, 0, len(docs))
	skipped := 0
	for _, doc := range docs {
		if doc.Data == nil {
			doc.Data = Data{}
		}
		started, err := s.submit(doc)
		if err != nil {
			return result, err
		}
		if !started {
			skipped++
			log.Debug("task already has a live run, not resubmitted",
				"task_id", doc.ID,
				"task_key", doc.Key)
		}
		result = append(result, contextFromDocument(doc))
	}

	log.Info("requeued remaining tasks", "count", len(docs), "already_running", skipped)

	return result, nil
}

// StopAllEnqueuedTasks marks every task that has not succeeded or been
// cancelled as stopped. Attempts already scheduled in memory still run and
// may overwrite the stopped status.
func (s *Storage) StopAllEnqueuedTasks(ctx context.Context) error {
	_, err := s.StopAllEnqueuedTasksCount(ctx)
	return err
}

// StopAllEnqueuedTasksCount is StopAllEnqueuedTasks, also returning the
// number of documents whose status changed.
func (s *Storage) StopAllEnqueuedTasksCount(ctx context.Context) (int64, error) {
	var modified int64
	err := s.withTaskCollection(ctx, func(c Collection) error {
		var err error
		modified, err = c.SetStatusMany(ctx, Filter{
			ExcludeStatuses: terminalStatuses(),
		}, StatusStopped)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to stop enqueued tasks: %w", err)
	}

	s.getLogger().Debug("stopped enqueued tasks", "modified_count", modified)

	return modified, nil
}

// GetTask returns the stored document with the given uuid.
func (s *Storage) GetTask(ctx context.Context, taskUUID string) (*Document, error) {
	id := strings.ToLower(strings.TrimSpace(taskUUID))
	var doc *Document
	err := s.withTaskCollection(ctx, func(c Collection) error {
		var err error
		doc, err = c.FindOne(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Close stops scheduling new attempts. Attempts already running finish,
// but none are retried afterwards, and the context handed to execution
// handlers is cancelled.
func (s *Storage) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, run := range s.runs {
		run.cancel()
	}
	pending := len(s.runs)
	s.runs = make(map[int64]*taskRun)
	s.mu.Unlock()

	s.cancel()

	s.getLogger().Info("queue storage closed", "abandoned_runs", pending)
	return nil
}

func (s *Storage) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// ActiveRuns returns the number of task instances with an attempt
// scheduled or in progress.
func (s *Storage) ActiveRuns() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}
