// Package queuetest holds a behavioural test suite shared by every
// queue.Collection implementation.
package queuetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/docqueue/internal/queue"
	"github.com/phrazzld/docqueue/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewDocument returns a valid document that has not been inserted yet.
func NewDocument(key string, status queue.Status) *queue.Document {
	return &queue.Document{
		UUID:      uuid.NewString(),
		Key:       key,
		Data:      queue.Data{"to": "someone@example.com"},
		Status:    status,
		Errors:    []queue.ErrorRecord{},
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		CreatedBy: "worker-0",
	}
}

// RunCollectionTests exercises c, which must be empty.
func RunCollectionTests(t *testing.T, c queue.Collection) {
	t.Helper()
	ctx := context.Background()

	created := NewDocument("send-email", queue.StatusCreated)
	failed := NewDocument("send-email", queue.StatusFailed)
	done := NewDocument("send-email", queue.StatusSuccess)

	t.Run("InsertOne assigns increasing ids", func(t *testing.T) {
		require.NoError(t, c.InsertOne(ctx, created))
		require.NoError(t, c.InsertOne(ctx, failed))
		require.NoError(t, c.InsertOne(ctx, done))

		assert.Positive(t, created.ID)
		assert.Greater(t, failed.ID, created.ID)
		assert.Greater(t, done.ID, failed.ID)
	})

	t.Run("InsertOne rejects a duplicate uuid", func(t *testing.T) {
		dup := NewDocument("send-email", queue.StatusCreated)
		dup.UUID = created.UUID
		err := c.InsertOne(ctx, dup)
		assert.True(t, store.IsDuplicateError(err), "got %v", err)
	})

	t.Run("FindOne returns the stored document", func(t *testing.T) {
		got, err := c.FindOne(ctx, created.UUID)
		require.NoError(t, err)

		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, created.UUID, got.UUID)
		assert.Equal(t, "send-email", got.Key)
		assert.Equal(t, queue.Data{"to": "someone@example.com"}, got.Data)
		assert.Equal(t, queue.StatusCreated, got.Status)
		assert.Empty(t, got.Errors)
		assert.WithinDuration(t, created.CreatedAt, got.CreatedAt, time.Millisecond)
		assert.Equal(t, "worker-0", got.CreatedBy)
		assert.Nil(t, got.UpdatedAt)
		assert.Empty(t, got.UpdatedBy)
	})

	t.Run("FindOne reports unknown uuids as not found", func(t *testing.T) {
		_, err := c.FindOne(ctx, uuid.NewString())
		assert.True(t, store.IsNotFoundError(err), "got %v", err)
	})

	t.Run("UpdateOne sets and clears fields", func(t *testing.T) {
		at := time.Now().UTC().Truncate(time.Millisecond)
		msg := "smtp unavailable"
		require.NoError(t, c.UpdateOne(ctx, created.ID, queue.Update{
			Status:    queue.Set(queue.StatusFailed),
			Data:      queue.Set(queue.Data{"to": "other@example.com", "attempt": "2"}),
			Errors:    queue.Set([]queue.ErrorRecord{{Time: at, Message: &msg, OccurredIn: "worker-0"}}),
			UpdatedAt: queue.Set(at),
			UpdatedBy: queue.Set("worker-1"),
		}))

		got, err := c.FindOne(ctx, created.UUID)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusFailed, got.Status)
		assert.Equal(t, queue.Data{"to": "other@example.com", "attempt": "2"}, got.Data)
		require.Len(t, got.Errors, 1)
		require.NotNil(t, got.Errors[0].Message)
		assert.Equal(t, msg, *got.Errors[0].Message)
		assert.Nil(t, got.Errors[0].Stack)
		assert.Equal(t, "worker-0", got.Errors[0].OccurredIn)
		require.NotNil(t, got.UpdatedAt)
		assert.WithinDuration(t, at, *got.UpdatedAt, time.Millisecond)
		assert.Equal(t, "worker-1", got.UpdatedBy)

		require.NoError(t, c.UpdateOne(ctx, created.ID, queue.Update{
			Status:    queue.Set(queue.StatusCreated),
			UpdatedBy: queue.Clear[string](),
		}))
		got, err = c.FindOne(ctx, created.UUID)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusCreated, got.Status)
		assert.Empty(t, got.UpdatedBy)
		assert.Len(t, got.Errors, 1, "fields not named in the update are kept")
	})

	t.Run("UpdateOne ignores unknown ids", func(t *testing.T) {
		assert.NoError(t, c.UpdateOne(ctx, done.ID+1000, queue.Update{Status: queue.Set(queue.StatusFailed)}))
	})

	t.Run("Find excludes statuses and orders by id", func(t *testing.T) {
		docs, err := c.Find(ctx, queue.Filter{ExcludeStatuses: []queue.Status{
			queue.StatusSuccess, queue.StatusCancelled, queue.StatusRunning,
		}})
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, created.UUID, docs[0].UUID)
		assert.Equal(t, failed.UUID, docs[1].UUID)

		all, err := c.Find(ctx, queue.Filter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("SetStatusMany counts changed documents", func(t *testing.T) {
		filter := queue.Filter{ExcludeStatuses: []queue.Status{queue.StatusSuccess, queue.StatusCancelled}}

		n, err := c.SetStatusMany(ctx, filter, queue.StatusStopped)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		n, err = c.SetStatusMany(ctx, filter, queue.StatusStopped)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)

		got, err := c.FindOne(ctx, done.UUID)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusSuccess, got.Status)
	})
}
