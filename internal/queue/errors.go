package queue

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

// Common errors returned by Storage
var (
	ErrInvalidOptions = errors.New("invalid queue storage options")
	ErrInvalidTask    = errors.New("invalid task")
	ErrClosed         = errors.New("queue storage is closed")
)

// Errors returned by execution handlers may implement any of these to
// control what ends up in the task's error record.
type (
	namedError interface {
		error
		Name() string
	}
	detailedError interface {
		error
		Details() string
	}
	stackTracer interface {
		error
		Stack() string
	}
)

// panicError carries a value recovered from a panicking handler.
type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }
func (e *panicError) Name() string  { return "panic" }
func (e *panicError) Stack() string { return string(e.stack) }

func recoverHandlerPanic(r any) error {
	if err, ok := r.(error); ok {
		return &panicError{value: err, stack: debug.Stack()}
	}
	return &panicError{value: r, stack: debug.Stack()}
}

// newErrorRecord extracts what it can from err.
func newErrorRecord(err error, at time.Time, occurredIn string) ErrorRecord {
	record := ErrorRecord{
		Time:       at,
		OccurredIn: occurredIn,
	}
	if err == nil {
		return record
	}

	name := fmt.Sprintf("%T", err)
	var named namedError
	if errors.As(err, &named) {
		name = named.Name()
	}
	record.Name = nullable(name)

	message := err.Error()
	record.Message = nullable(message)

	var detailed detailedError
	if errors.As(err, &detailed) {
		record.Details = nullable(detailed.Details())
	} else if record.Message != nil && record.Name != nil {
		record.Details = nullable(*record.Name + ": " + *record.Message)
	} else if record.Message != nil {
		record.Details = record.Message
	} else {
		record.Details = record.Name
	}

	var tracer stackTracer
	if errors.As(err, &tracer) {
		record.Stack = nullable(tracer.Stack())
	}

	return record
}

func nullable(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
