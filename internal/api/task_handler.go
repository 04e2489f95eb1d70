package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/docqueue/internal/api/shared"
	"github.com/phrazzld/docqueue/internal/platform/logger"
	"github.com/phrazzld/docqueue/internal/queue"
)

// TaskQueue is the part of queue.Storage the HTTP API uses.
type TaskQueue interface {
	EnqueueTask(ctx context.Context, opts queue.EnqueueOptions) (queue.TaskContext, error)
	EnqueueRemainingTasks(ctx context.Context) ([]queue.TaskContext, error)
	StopAllEnqueuedTasksCount(ctx context.Context) (int64, error)
	GetTask(ctx context.Context, taskUUID string) (*queue.Document, error)
}

var _ TaskQueue = (*queue.Storage)(nil)

// TaskHandler serves the /api/tasks endpoints.
type TaskHandler struct {
	queue TaskQueue
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(q TaskQueue) *TaskHandler {
	return &TaskHandler{queue: q}
}

// EnqueueTask handles POST /api/tasks. The task runs asynchronously, so the
// response is 202 Accepted with the task id.
func (h *TaskHandler) EnqueueTask(w http.ResponseWriter, r *http.Request) {
	var req EnqueueTaskRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	tc, err := h.queue.EnqueueTask(r.Context(), queue.EnqueueOptions{Key: req.Key, Data: req.Data})
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	logger.FromContext(r.Context()).Debug("task accepted", "task_key", req.Key)
	shared.RespondWithJSON(w, r, http.StatusAccepted, taskIDResponse(tc))
}

// RequeueTasks handles POST /api/tasks/requeue.
func (h *TaskHandler) RequeueTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.queue.EnqueueRemainingTasks(r.Context())
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	resp := RequeueResponse{Tasks: make([]TaskIDResponse, 0, len(tasks))}
	for _, tc := range tasks {
		resp.Tasks = append(resp.Tasks, taskIDResponse(tc))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// StopTasks handles POST /api/tasks/stop.
func (h *TaskHandler) StopTasks(w http.ResponseWriter, r *http.Request) {
	n, err := h.queue.StopAllEnqueuedTasksCount(r.Context())
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, StopResponse{Modified: n})
}

// GetTask handles GET /api/tasks/{uuid}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "uuid"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task id")
		return
	}

	doc, err := h.queue.GetTask(r.Context(), id.String())
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, doc)
}
