package postgres_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/phrazzld/docqueue/internal/platform/postgres"
	"github.com/phrazzld/docqueue/internal/queue"
	"github.com/phrazzld/docqueue/internal/queue/queuetest"
	"github.com/phrazzld/docqueue/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// uniqueCollection returns a collection name no other test uses.
func uniqueCollection() string {
	return "tasks_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// dropAfter removes the collection table when the test completes.
func dropAfter(t *testing.T, pool *pgxpool.Pool, name string) {
	t.Cleanup(func() {
		_, err := pool.Exec(context.Background(), `DROP TABLE IF EXISTS `+pgx.Identifier{name}.Sanitize())
		if err != nil {
			t.Logf("warning: failed to drop %s: %v", name, err)
		}
	})
}

// A rejected insert aborts the surrounding transaction, so the contract
// runs against the pool on a throwaway table.
func TestCollection_Integration(t *testing.T) {
	t.Parallel()
	pool := testdb.GetTestPoolWithT(t)

	name := uniqueCollection()
	dropAfter(t, pool, name)

	queuetest.RunCollectionTests(t, postgres.NewDatabase(pool).Collection(name))
}

func TestCollection_DefaultCollectionExists(t *testing.T) {
	t.Parallel()
	pool := testdb.GetTestPoolWithT(t)

	var exists bool
	err := pool.QueryRow(context.Background(),
		`SELECT to_regclass('"queueTasks"') IS NOT NULL`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "migrations create the default collection")
}

func TestCollection_NullData(t *testing.T) {
	t.Parallel()
	pool := testdb.GetTestPoolWithT(t)

	testdb.WithTx(t, pool, func(t *testing.T, tx pgx.Tx) {
		ctx := context.Background()
		c := postgres.NewDatabase(tx).Collection(uniqueCollection())

		doc := queuetest.NewDocument("no-data", queue.StatusCreated)
		doc.Data = nil
		require.NoError(t, c.InsertOne(ctx, doc))

		got, err := c.FindOne(ctx, doc.UUID)
		require.NoError(t, err)
		assert.Nil(t, got.Data)
	})
}

func TestStorage_Integration(t *testing.T) {
	t.Parallel()
	pool := testdb.GetTestPoolWithT(t)
	ctx := context.Background()

	name := uniqueCollection()
	dropAfter(t, pool, name)

	retry := 10 * time.Millisecond
	storage, err := queue.New(queue.Options{
		Database:       queue.StaticDatabase(postgres.NewDatabase(pool)),
		CollectionName: name,
		RetryDelay:     &retry,
		SystemName:     func() string { return "pg-worker" },
	})
	require.NoError(t, err)
	defer storage.Close()

	var calls atomic.Int32
	storage.RegisterExecutionHandler(func(_ context.Context, exec queue.Execution) error {
		if calls.Add(1) == 1 {
			return errors.New("first attempt fails")
		}
		exec.Data["sent"] = true
		return nil
	})

	task, err := storage.EnqueueTask(ctx, queue.EnqueueOptions{Key: "send-email", Data: queue.Data{"to": "a@b.c"}})
	require.NoError(t, err)
	require.NotNil(t, task.ID)

	require.Eventually(t, func() bool {
		doc, err := storage.GetTask(ctx, *task.ID)
		return err == nil && doc.Status == queue.StatusSuccess
	}, 5*time.Second, 20*time.Millisecond)

	doc, err := storage.GetTask(ctx, *task.ID)
	require.NoError(t, err)
	assert.Equal(t, "pg-worker", doc.CreatedBy)
	assert.Equal(t, "pg-worker", doc.UpdatedBy)
	assert.Equal(t, true, doc.Data["sent"])
	require.Len(t, doc.Errors, 1)
	assert.Equal(t, "first attempt fails", *doc.Errors[0].Message)
}
