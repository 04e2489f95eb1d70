package queue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/docqueue/internal/platform/logger"
	"github.com/phrazzld/docqueue/internal/platform/memory"
	"github.com/phrazzld/docqueue/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestExecute_SendEmailScenario(t *testing.T) {
	env := newTestEnv(t)

	var calls atomic.Int32
	env.storage.RegisterExecutionHandler(func(ctx context.Context, exec queue.Execution) error {
		assert.Equal(t, "send-email", exec.TaskKey)
		if calls.Add(1) == 1 {
			return errors.New("smtp down")
		}
		return nil
	})

	tc, err := env.storage.EnqueueTask(context.Background(), queue.EnqueueOptions{
		Key:  "send-email",
		Data: queue.Data{"to": "a@example.com"},
	})
	require.NoError(t, err)

	require.Equal(t, 1, env.scheduler.RunNow())

	doc := env.docByContext(t, tc)
	assert.Equal(t, queue.StatusFailed, doc.Status)
	require.Len(t, doc.Errors, 1)

	// Exactly one retry, after the configured delay
	now, delayed := env.scheduler.Pending()
	assert.Equal(t, 0, now)
	assert.Equal(t, 1, delayed)
	assert.Equal(t, []time.Duration{testRetryDelay}, env.scheduler.RunDelayed())

	doc = env.docByContext(t, tc)
	assert.Equal(t, queue.StatusSuccess, doc.Status)
	assert.Equal(t, []queue.Status{
		queue.StatusCreated,
		queue.StatusRunning,
		queue.StatusFailed,
		queue.StatusRunning,
		queue.StatusSuccess,
	}, env.recorder.Statuses(doc.ID))

	require.Len(t, doc.Errors, 1)
	record := doc.Errors[0]
	require.NotNil(t, record.Message)
	assert.Equal(t, "smtp down", *record.Message)
	require.NotNil(t, record.Name)
	assert.Equal(t, "*errors.errorString", *record.Name)
	require.NotNil(t, record.Details)
	assert.Equal(t, "*errors.errorString: smtp down", *record.Details)
	assert.Nil(t, record.Stack)
	assert.Equal(t, "worker-0", record.OccurredIn)
	assert.False(t, record.Time.IsZero())

	assert.Equal(t, "worker-0", doc.UpdatedBy)
	require.NotNil(t, doc.UpdatedAt)
	assert.Equal(t, 0, env.storage.ActiveRuns())

	logsContain(t, env, "task failed and will be retried")
	logsContain(t, env, `"retry_in_ms":250`)
}

func TestExecute_SuccessLeavesErrorsUnchanged(t *testing.T) {
	env := newTestEnv(t)

	message := "from an earlier process"
	env.tasks.Put(&queue.Document{
		UUID:   "b1f0c7aa-0000-4000-8000-000000000001",
		Key:    "k",
		Status: queue.StatusFailed,
		Errors: []queue.ErrorRecord{{Message: &message}},
	})
	env.storage.RegisterExecutionHandler(func(ctx context.Context, exec queue.Execution) error { return nil })

	_, err := env.storage.EnqueueRemainingTasks(context.Background())
	require.NoError(t, err)
	env.scheduler.RunNow()

	doc := env.tasks.Get(1)
	assert.Equal(t, queue.StatusSuccess, doc.Status)
	require.Len(t, doc.Errors, 1)
	assert.Equal(t, message, *doc.Errors[0].Message)
}

func TestExecute_ErrorsGrowOncePerFailedAttempt(t *testing.T) {
	env := newTestEnv(t)

	env.storage.RegisterExecutionHandler(func(ctx context.Context, exec queue.Execution) error {
		return errors.New("still broken")
	})

	tc, err := env.storage.EnqueueTask(context.Background(), queue.EnqueueOptions{Key: "k"})
	require.NoError(t, err)
	env.scheduler.RunNow()

	for attempt := 1; attempt <= 4; attempt++ {
		doc := env.docByContext(t, tc)
		assert.Equal(t, queue.StatusFailed, doc.Status)
		require.Len(t, doc.Errors, attempt)

		delays := env.scheduler.RunDelayed()
		assert.Equal(t, []time.Duration{testRetryDelay}, delays, "attempt %d", attempt)
	}

	doc := env.docByContext(t, tc)
	require.Len(t, doc.Errors, 5)
	for i := 1; i < len(doc.Errors); i++ {
		assert.False(t, doc.Errors[i].Time.Before(doc.Errors[i-1].Time), "errors are kept oldest first")
	}
}

func TestExecute_HandlersRunInOrder(t *testing.T) {
	env := newTestEnv(t)

	var order []string
	env.storage.RegisterExecutionHandler(func(ctx context.Context, exec queue.Execution) error {
		order = append(order, "first")
		exec.Data["first"] = true
		return nil
	})
	env.storage.RegisterExecutionHandler(nil)
	env.storage.RegisterExecutionHandler(func(ctx context.Context, exec queue.Execution) error {
		order = append(order, "second")
		assert.Equal(t, true, exec.Data["first"], "later handlers see earlier changes")
		exec.Data["second"] = "done"
		return nil
	})

	tc, err := env.storage.EnqueueTask(context.Background(), queue.EnqueueOptions{
		Key:  "k",
		Data: queue.Data{"input": 1},
	})
	require.NoError(t, err)
	env.scheduler.RunNow()

	assert.Equal(t, []string{"first", "second"}, order)

	doc := env.docByContext(t, tc)
	assert.Equal(t, queue.StatusSuccess, doc.Status)
	assert.Equal(t, queue.Data{"input": 1, "first": true, "second": "done"}, doc.Data)

	logsContain(t, env, "task handler executed")
	logsContain(t, env, `"duration_ms"`)
}

func TestExecute_LaterHandlersSkippedAfterFailure(t *testing.T) {
	env := newTestEnv(t)

	var secondCalls atomic.Int32
	env.storage.RegisterExecutionHandler(func(ctx context.Context, exec queue.Execution) error {
		return errors.New("first fails")
	})
	env.storage.RegisterExecutionHandler(func(ctx context.Context, exec queue.Execution) error {
		secondCalls.Add(1)
		return nil
	})

	_, err := env.storage.EnqueueTask(context.Background(), queue.EnqueueOptions{Key: "k"})
	require.NoError(t, err)
	env.scheduler.RunNow()

	assert.Equal(t, int32(0), secondCalls.Load())
}

func TestExecute_HandlerPanic(t *testing.T) {
	env := newTestEnv(t)

	env.storage.RegisterExecutionHandler(func(ctx context.Context, exec queue.Execution) error {
		panic("nil pointer somewhere")
	})

	tc, err := env.storage.EnqueueTask(context.Background(), queue.EnqueueOptions{Key: "k"})
	require.NoError(t, err)
	assert.NotPanics(t, func() { env.scheduler.RunNow() })

	doc := env.docByContext(t, tc)
	assert.Equal(t, queue.StatusFailed, doc.Status)
	require.Len(t, doc.Errors, 1)

	record := doc.Errors[0]
	assert.Equal(t, "panic", *record.Name)
	assert.Equal(t, "panic: nil pointer somewhere", *record.Message)
	require.NotNil(t, record.Stack)
	assert.Contains(t, *record.Stack, "goroutine")

	_, delayed := env.scheduler.Pending()
	assert.Equal(t, 1, delayed)
}

func TestExecute_PersistenceErrorIsRetried(t *testing.T) {
	t.Setenv(queue.SystemNameEnv, "")

	collection := &mockCollection{}
	collection.On("InsertOne", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { args.Get(1).(*queue.Document).ID = 42 }).
		Return(nil)

	isStatus := func(status queue.Status) interface{} {
		return mock.MatchedBy(func(u queue.Update) bool {
			s, ok := u.Status.Value()
			return ok && s == status
		})
	}
	collection.On("UpdateOne", mock.Anything, int64(42), isStatus(queue.StatusRunning)).
		Return(errors.New("connection reset")).Once()
	collection.On("UpdateOne", mock.Anything, int64(42), isStatus(queue.StatusFailed)).
		Return(nil).Once()

	scheduler := &manualScheduler{}
	var handlerCalls atomic.Int32
	storage, err := queue.New(queue.Options{
		Database:  queue.StaticDatabase(singleCollection{c: collection}),
		Scheduler: scheduler,
		Logger:    func() logger.Logger { return logger.Discard },
	})
	require.NoError(t, err)
	defer storage.Close()
	storage.RegisterExecutionHandler(func(ctx context.Context, exec queue.Execution) error {
		handlerCalls.Add(1)
		return nil
	})

	_, err = storage.EnqueueTask(context.Background(), queue.EnqueueOptions{Key: "k"})
	require.NoError(t, err)
	scheduler.RunNow()

	assert.Equal(t, int32(0), handlerCalls.Load())
	_, delayed := scheduler.Pending()
	assert.Equal(t, 1, delayed, "a failed status write is handled like a handler error")

	failed := collection.Calls[2].Arguments.Get(2).(queue.Update)
	errs, ok := failed.Errors.Value()
	require.True(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, "connection reset", *errs[0].Message)
	assert.True(t, failed.UpdatedBy.IsCleared(), "an empty system name removes updatedBy")

	collection.AssertExpectations(t)
}

func TestExecute_DoubleFault(t *testing.T) {
	t.Setenv(queue.SystemNameEnv, "")

	collection := &mockCollection{}
	collection.On("InsertOne", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { args.Get(1).(*queue.Document).ID = 7 }).
		Return(nil)
	collection.On("UpdateOne", mock.Anything, int64(7), mock.Anything).
		Return(errors.New("database unavailable"))

	logBuf, sl := logger.NewTestLogger(t)
	scheduler := &manualScheduler{}
	storage, err := queue.New(queue.Options{
		Database:  queue.StaticDatabase(singleCollection{c: collection}),
		Scheduler: scheduler,
		Logger:    func() logger.Logger { return logger.FromSlog(sl) },
	})
	require.NoError(t, err)
	defer storage.Close()

	_, err = storage.EnqueueTask(context.Background(), queue.EnqueueOptions{Key: "k"})
	require.NoError(t, err)
	scheduler.RunNow()

	now, delayed := scheduler.Pending()
	assert.Equal(t, 0, now)
	assert.Equal(t, 0, delayed, "no retry when the failure cannot be recorded")
	assert.Equal(t, 0, storage.ActiveRuns())
	collection.AssertNumberOfCalls(t, "UpdateOne", 2)

	logger.AssertLogContains(t, logBuf, "failed to record task failure")
	logger.AssertLogContains(t, logBuf, `"level":"ERROR"`)
	logger.AssertLogContains(t, logBuf, `"update_error":"database unavailable"`)
	logger.AssertLogContains(t, logBuf, `"error":"database unavailable"`)
}

func TestExecute_ZeroRetryDelay(t *testing.T) {
	scheduler := &manualScheduler{}
	zero := time.Duration(0)
	storage, err := queue.New(queue.Options{
		Database:   queue.StaticDatabase(memory.NewDatabase()),
		Scheduler:  scheduler,
		RetryDelay: &zero,
		Logger:     func() logger.Logger { return nil },
	})
	require.NoError(t, err)
	defer storage.Close()

	storage.RegisterExecutionHandler(func(ctx context.Context, exec queue.Execution) error {
		return errors.New("x")
	})

	_, err = storage.EnqueueTask(context.Background(), queue.EnqueueOptions{Key: "k"})
	require.NoError(t, err)
	scheduler.RunNow()

	assert.Equal(t, []time.Duration{0}, scheduler.RunDelayed())
}

func TestExecute_GoScheduler(t *testing.T) {
	db := memory.NewDatabase()
	retryDelay := 10 * time.Millisecond
	storage, err := queue.New(queue.Options{
		Database:   queue.StaticDatabase(db),
		RetryDelay: &retryDelay,
		Logger:     func() logger.Logger { return logger.Discard },
	})
	require.NoError(t, err)
	defer storage.Close()

	var calls atomic.Int32
	storage.RegisterExecutionHandler(func(ctx context.Context, exec queue.Execution) error {
		if calls.Add(1) < 3 {
			return errors.New("not yet")
		}
		return nil
	})

	tasks := make([]queue.TaskContext, 0, 5)
	for i := 0; i < 5; i++ {
		tc, err := storage.EnqueueTask(context.Background(), queue.EnqueueOptions{Key: "k"})
		require.NoError(t, err)
		tasks = append(tasks, tc)
	}

	collection := db.TaskCollection(queue.DefaultCollectionName)
	require.Eventually(t, func() bool {
		for _, tc := range tasks {
			doc, err := collection.FindOne(context.Background(), *tc.ID)
			if err != nil || doc.Status != queue.StatusSuccess {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)

	total := 0
	for _, tc := range tasks {
		doc, err := collection.FindOne(context.Background(), *tc.ID)
		require.NoError(t, err)
		total += len(doc.Errors)
	}
	assert.Equal(t, 2, total, "exactly the first two attempts overall failed")
	assert.Eventually(t, func() bool { return storage.ActiveRuns() == 0 }, time.Second, 5*time.Millisecond)
}
