package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/docqueue/internal/platform/logger"
	"github.com/phrazzld/docqueue/internal/platform/memory"
	"github.com/phrazzld/docqueue/internal/queue"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// manualScheduler queues actions until the test runs them.
type manualScheduler struct {
	mu      sync.Mutex
	now     []func()
	delayed []delayedAction
}

type delayedAction struct {
	delay time.Duration
	fn    func()
}

func (m *manualScheduler) Now(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = append(m.now, fn)
}

func (m *manualScheduler) After(d time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delayed = append(m.delayed, delayedAction{delay: d, fn: fn})
}

// RunNow runs the immediate actions queued so far and returns how many ran.
func (m *manualScheduler) RunNow() int {
	m.mu.Lock()
	actions := m.now
	m.now = nil
	m.mu.Unlock()

	for _, fn := range actions {
		fn()
	}
	return len(actions)
}

// RunDelayed runs the delayed actions queued so far and returns their delays.
func (m *manualScheduler) RunDelayed() []time.Duration {
	m.mu.Lock()
	actions := m.delayed
	m.delayed = nil
	m.mu.Unlock()

	delays := make([]time.Duration, 0, len(actions))
	for _, a := range actions {
		delays = append(delays, a.delay)
		a.fn()
	}
	return delays
}

func (m *manualScheduler) Pending() (now, delayed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.now), len(m.delayed)
}

// statusRecorder wraps a collection and remembers every status written.
type statusRecorder struct {
	queue.Collection

	mu       sync.Mutex
	statuses map[int64][]queue.Status
}

func newStatusRecorder(c queue.Collection) *statusRecorder {
	return &statusRecorder{Collection: c, statuses: make(map[int64][]queue.Status)}
}

func (r *statusRecorder) InsertOne(ctx context.Context, doc *queue.Document) error {
	if err := r.Collection.InsertOne(ctx, doc); err != nil {
		return err
	}
	r.mu.Lock()
	r.statuses[doc.ID] = append(r.statuses[doc.ID], doc.Status)
	r.mu.Unlock()
	return nil
}

func (r *statusRecorder) UpdateOne(ctx context.Context, id int64, u queue.Update) error {
	if err := r.Collection.UpdateOne(ctx, id, u); err != nil {
		return err
	}
	if status, ok := u.Status.Value(); ok {
		r.mu.Lock()
		r.statuses[id] = append(r.statuses[id], status)
		r.mu.Unlock()
	}
	return nil
}

func (r *statusRecorder) Statuses(id int64) []queue.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]queue.Status(nil), r.statuses[id]...)
}

// singleCollection is a Database with one collection regardless of name.
type singleCollection struct {
	c queue.Collection
}

func (s singleCollection) Collection(string) queue.Collection { return s.c }

// mockCollection is a testify mock of queue.Collection.
type mockCollection struct {
	mock.Mock
}

func (m *mockCollection) InsertOne(ctx context.Context, doc *queue.Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *mockCollection) UpdateOne(ctx context.Context, id int64, u queue.Update) error {
	args := m.Called(ctx, id, u)
	return args.Error(0)
}

func (m *mockCollection) Find(ctx context.Context, f queue.Filter) ([]*queue.Document, error) {
	args := m.Called(ctx, f)
	docs, _ := args.Get(0).([]*queue.Document)
	return docs, args.Error(1)
}

func (m *mockCollection) FindOne(ctx context.Context, uuid string) (*queue.Document, error) {
	args := m.Called(ctx, uuid)
	doc, _ := args.Get(0).(*queue.Document)
	return doc, args.Error(1)
}

func (m *mockCollection) SetStatusMany(ctx context.Context, f queue.Filter, status queue.Status) (int64, error) {
	args := m.Called(ctx, f, status)
	return args.Get(0).(int64), args.Error(1)
}

type testEnv struct {
	storage   *queue.Storage
	scheduler *manualScheduler
	db        *memory.Database
	tasks     *memory.Collection
	recorder  *statusRecorder
	logs      *logger.TestLogBuffer
}

const testRetryDelay = 250 * time.Millisecond

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := memory.NewDatabase()
	tasks := db.TaskCollection(queue.DefaultCollectionName)
	recorder := newStatusRecorder(tasks)
	scheduler := &manualScheduler{}
	logBuf, sl := logger.NewTestLogger(t)
	retryDelay := testRetryDelay

	storage, err := queue.New(queue.Options{
		Database:   queue.StaticDatabase(singleCollection{c: recorder}),
		Logger:     func() logger.Logger { return logger.FromSlog(sl) },
		SystemName: func() string { return "  worker-0  " },
		Scheduler:  scheduler,
		RetryDelay: &retryDelay,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	return &testEnv{
		storage:   storage,
		scheduler: scheduler,
		db:        db,
		tasks:     tasks,
		recorder:  recorder,
		logs:      logBuf,
	}
}

// docByContext loads the stored document behind a task context.
func (e *testEnv) docByContext(t *testing.T, tc queue.TaskContext) *queue.Document {
	t.Helper()
	require.NotNil(t, tc.ID)
	doc, err := e.tasks.FindOne(context.Background(), *tc.ID)
	require.NoError(t, err)
	return doc
}
