package api

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/docqueue/internal/queue"
)

var (
	validate    = validator.New()
	errBlankKey = errors.New("key must not be blank")
)

// EnqueueTaskRequest is the body of POST /api/tasks.
type EnqueueTaskRequest struct {
	Key  string     `json:"key"  validate:"required,max=255"`
	Data queue.Data `json:"data"`
}

// Validate checks the struct tags and rejects a key made only of
// whitespace. The key is otherwise stored exactly as sent.
func (r *EnqueueTaskRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	if strings.TrimSpace(r.Key) == "" {
		return errBlankKey
	}
	return nil
}

// TaskIDResponse identifies one task.
type TaskIDResponse struct {
	ID *string `json:"id"`
}

// RequeueResponse lists the tasks resubmitted by POST /api/tasks/requeue.
type RequeueResponse struct {
	Tasks []TaskIDResponse `json:"tasks"`
}

// StopResponse is the result of POST /api/tasks/stop.
type StopResponse struct {
	Modified int64 `json:"modified"`
}

func taskIDResponse(tc queue.TaskContext) TaskIDResponse {
	return TaskIDResponse{ID: tc.ID}
}
