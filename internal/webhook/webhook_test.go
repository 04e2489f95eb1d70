package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/docqueue/internal/platform/logger"
	"github.com/phrazzld/docqueue/internal/platform/memory"
	"github.com/phrazzld/docqueue/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHandler_Validation(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{name: "empty", url: ""},
		{name: "no scheme", url: "localhost:9000/hook"},
		{name: "unsupported scheme", url: "ftp://example.com/hook"},
		{name: "missing host", url: "http:///hook"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewHandler(Config{URL: tt.url})
			assert.Error(t, err)
			assert.Nil(t, h)
		})
	}

	h, err := NewHandler(Config{URL: " https://example.com/hook "})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/hook", h.url)
	assert.Equal(t, DefaultTimeout, h.client.Timeout)
}

func TestHandler_PostsPayload(t *testing.T) {
	var (
		got     Payload
		headers http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		headers = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	h, err := NewHandler(Config{URL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)

	err = h.Execute(context.Background(), queue.Execution{
		TaskKey:  "send-email",
		TaskUUID: "2b1f0c5e-7d1a-4a53-9f0e-0c1d2e3f4a5b",
		Data:     queue.Data{"to": "someone@example.com"},
	})
	require.NoError(t, err)

	assert.Equal(t, "send-email", got.Key)
	assert.Equal(t, "2b1f0c5e-7d1a-4a53-9f0e-0c1d2e3f4a5b", got.TaskUUID)
	assert.Equal(t, queue.Data{"to": "someone@example.com"}, got.Data)
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.Equal(t, "send-email", headers.Get("X-Task-Key"))
}

func TestHandler_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "mailbox full", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	h, err := NewHandler(Config{URL: srv.URL})
	require.NoError(t, err)

	err = h.Execute(context.Background(), queue.Execution{TaskKey: "send-email", Data: queue.Data{}})
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, "mailbox full", statusErr.Body)
	assert.Equal(t, "WebhookStatusError", statusErr.Name())
	assert.Equal(t, "webhook responded with status 503: mailbox full", statusErr.Details())
}

func TestHandler_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	h, err := NewHandler(Config{URL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = h.Execute(ctx, queue.Execution{TaskKey: "slow"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHandler_WithStorage(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "upstream down", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h, err := NewHandler(Config{URL: srv.URL})
	require.NoError(t, err)

	retry := time.Duration(0)
	storage, err := queue.New(queue.Options{
		Database:   queue.StaticDatabase(memory.NewDatabase()),
		RetryDelay: &retry,
		SystemName: func() string { return "hook-worker" },
		Logger:     func() logger.Logger { return logger.Discard },
	})
	require.NoError(t, err)
	defer storage.Close()
	storage.RegisterExecutionHandler(h.Execute)

	ctx := context.Background()
	task, err := storage.EnqueueTask(ctx, queue.EnqueueOptions{Key: "notify"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		doc, err := storage.GetTask(ctx, *task.ID)
		return err == nil && doc.Status == queue.StatusSuccess
	}, 2*time.Second, 10*time.Millisecond)

	doc, err := storage.GetTask(ctx, *task.ID)
	require.NoError(t, err)
	require.Len(t, doc.Errors, 1)
	assert.Equal(t, "WebhookStatusError", *doc.Errors[0].Name)
	assert.Equal(t, "webhook responded with status 502: upstream down", *doc.Errors[0].Details)
	assert.Equal(t, "hook-worker", doc.Errors[0].OccurredIn)
	assert.Equal(t, int32(2), calls.Load())
}
