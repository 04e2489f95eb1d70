package queue

import (
	"context"
	"reflect"
	"strings"
	"time"
)

// Status is the lifecycle state of a task document.
type Status string

// Possible task status values
const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
	StatusCancelled Status = "cancelled"
)

// statuses lists every status in lifecycle order.
var statuses = []Status{
	StatusCreated,
	StatusRunning,
	StatusSuccess,
	StatusFailed,
	StatusStopped,
	StatusCancelled,
}

// IsTerminal reports whether no further attempts are scheduled for a task in this status.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusCancelled
}

// terminalStatuses returns the terminal statuses in lifecycle order.
func terminalStatuses() []Status {
	var out []Status
	for _, s := range statuses {
		if s.IsTerminal() {
			out = append(out, s)
		}
	}
	return out
}

// Data is the structured payload of a task.
type Data map[string]any

// Clone returns a deep copy of d. Maps and slices of any type are copied at
// every level; pointers, structs and other values are shared.
func (d Data) Clone() Data {
	if d == nil {
		return nil
	}
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	if v == nil {
		return nil
	}
	return deepCopy(reflect.ValueOf(v)).Interface()
}

func deepCopy(rv reflect.Value) reflect.Value {
	switch rv.Kind() {
	case reflect.Interface:
		if rv.IsNil() {
			return rv
		}
		out := reflect.New(rv.Type()).Elem()
		out.Set(deepCopy(rv.Elem()))
		return out
	case reflect.Map:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), deepCopy(iter.Value()))
		}
		return out
	case reflect.Slice:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(deepCopy(rv.Index(i)))
		}
		return out
	default:
		return rv
	}
}

// Document is the persisted record of one task instance.
// The JSON field names are the storage contract.
type Document struct {
	// ID is assigned by the store on insert and never changes afterwards.
	ID int64 `json:"_id"`

	UUID      string        `json:"uuid"`
	Key       string        `json:"key"`
	Data      Data          `json:"data"`
	Status    Status        `json:"status"`
	Errors    []ErrorRecord `json:"errors"`
	CreatedAt time.Time     `json:"createdAt"`
	CreatedBy string        `json:"createdBy,omitempty"`
	UpdatedAt *time.Time    `json:"updatedAt,omitempty"`
	UpdatedBy string        `json:"updatedBy,omitempty"`
}

// Clone returns a copy of doc that shares no mutable state with it.
func (doc *Document) Clone() *Document {
	if doc == nil {
		return nil
	}
	out := *doc
	out.Data = doc.Data.Clone()
	if doc.Errors != nil {
		out.Errors = make([]ErrorRecord, len(doc.Errors))
		copy(out.Errors, doc.Errors)
	}
	if doc.UpdatedAt != nil {
		t := *doc.UpdatedAt
		out.UpdatedAt = &t
	}
	return &out
}

// ErrorRecord describes one failed attempt.
// Name, Message, Details and Stack are nil when the error did not provide them.
type ErrorRecord struct {
	Time       time.Time `json:"time"`
	Name       *string   `json:"name"`
	Message    *string   `json:"message"`
	Details    *string   `json:"details"`
	Stack      *string   `json:"stack"`
	OccurredIn string    `json:"occurredIn,omitempty"`
}

// TaskContext is the caller-facing handle of an enqueued task.
type TaskContext struct {
	// ID is the lower-cased task uuid, or nil if the document had none.
	ID *string `json:"id"`
}

func contextFromDocument(doc *Document) TaskContext {
	id := strings.ToLower(strings.TrimSpace(doc.UUID))
	if id == "" {
		return TaskContext{}
	}
	return TaskContext{ID: &id}
}

// EnqueueOptions describes a new task.
type EnqueueOptions struct {
	Key  string
	Data Data
}

// Execution is what an ExecutionHandler receives for one attempt.
// Handlers may modify Data; the changes are persisted with the next status update.
type Execution struct {
	TaskKey  string
	TaskUUID string
	Data     Data
}

// ExecutionHandler runs one step of an attempt. Returning an error (or
// panicking) fails the attempt.
type ExecutionHandler func(ctx context.Context, exec Execution) error

// QueueStorage is the storage abstraction consumed by queue front ends.
type QueueStorage interface {
	EnqueueTask(ctx context.Context, opts EnqueueOptions) (TaskContext, error)
	EnqueueRemainingTasks(ctx context.Context) ([]TaskContext, error)
	StopAllEnqueuedTasks(ctx context.Context) error
}
