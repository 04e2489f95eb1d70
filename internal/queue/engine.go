package queue

import (
	"context"
	"slices"
	"sync/atomic"
	"time"
)

// taskRun is the in-memory retry loop of one task instance. Exactly one
// attempt of a run is scheduled or in progress at any time.
type taskRun struct {
	doc       *Document
	cancelled atomic.Bool
}

func (r *taskRun) cancel() { r.cancelled.Store(true) }

func (r *taskRun) isCancelled() bool { return r.cancelled.Load() }

// submit starts the retry loop for doc with an immediate first attempt.
// It returns false without scheduling anything when doc already has a live
// run in this process, and ErrClosed once the storage is closed.
func (s *Storage) submit(doc *Document) (bool, error) {
	run := &taskRun{doc: doc}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrClosed
	}
	if _, live := s.runs[doc.ID]; live {
		s.mu.Unlock()
		return false, nil
	}
	s.runs[doc.ID] = run
	s.mu.Unlock()

	s.execute(run, nil)
	return true, nil
}

func (s *Storage) forget(run *taskRun) {
	s.mu.Lock()
	if s.runs[run.doc.ID] == run {
		delete(s.runs, run.doc.ID)
	}
	s.mu.Unlock()
}

// execute schedules the next attempt of run, after delay if one is given.
func (s *Storage) execute(run *taskRun, delay *time.Duration) {
	doc := run.doc
	log := s.getLogger()

	if delay != nil {
		log.Info("task will be executed after delay",
			"task_id", doc.ID,
			"task_key", doc.Key,
			"delay_ms", delay.Milliseconds())

		s.scheduler.After(*delay, func() { s.attempt(run) })
		return
	}

	log.Info("task will be executed immediately",
		"task_id", doc.ID,
		"task_key", doc.Key)

	s.scheduler.Now(func() { s.attempt(run) })
}

// attempt runs one pass over the execution handlers and arranges the next
// attempt when it fails.
func (s *Storage) attempt(run *taskRun) {
	if run.isCancelled() {
		s.forget(run)
		return
	}

	err := s.runHandlers(run)
	if err == nil {
		s.forget(run)
		return
	}

	s.handleError(run, err)
}

func (s *Storage) runHandlers(run *taskRun) error {
	doc := run.doc
	if doc.Data == nil {
		doc.Data = Data{}
	}

	if err := s.updateTask(run, Update{Status: Set(StatusRunning)}); err != nil {
		return err
	}

	for i, handler := range s.executionHandlers() {
		start := time.Now()

		err := invokeHandler(s.ctx, handler, Execution{
			TaskKey:  doc.Key,
			TaskUUID: doc.UUID,
			Data:     doc.Data,
		})
		if err != nil {
			return err
		}

		s.getLogger().Info("task handler executed",
			"task_id", doc.ID,
			"task_key", doc.Key,
			"handler_index", i,
			"duration_ms", time.Since(start).Milliseconds())
	}

	return s.updateTask(run, Update{Status: Set(StatusSuccess)})
}

func invokeHandler(ctx context.Context, handler ExecutionHandler, exec Execution) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoverHandlerPanic(r)
		}
	}()
	return handler(ctx, exec)
}

// handleError records cause on the document and schedules a retry. If the
// failure itself cannot be persisted, both errors are logged and the run ends.
func (s *Storage) handleError(run *taskRun, cause error) {
	doc := run.doc
	log := s.getLogger()

	record := newErrorRecord(cause, time.Now().UTC(), s.getSystemName())
	errs := append(slices.Clone(doc.Errors), record)

	err := s.updateTask(run, Update{
		Status: Set(StatusFailed),
		Errors: Set(errs),
	})
	if err != nil {
		log.Error("failed to record task failure, task will not be retried",
			"task_id", doc.ID,
			"task_key", doc.Key,
			"error", cause,
			"update_error", err)
		s.forget(run)
		return
	}

	doc.Errors = errs

	if run.isCancelled() {
		s.forget(run)
		return
	}

	delay := s.retryDelay
	s.execute(run, &delay)

	log.Warn("task failed and will be retried",
		"task_id", doc.ID,
		"task_key", doc.Key,
		"error", cause,
		"retry_in_ms", delay.Milliseconds())
}

// updateTask persists u together with the task's current data and the
// update stamp, then mirrors the change on the in-memory document.
func (s *Storage) updateTask(run *taskRun, u Update) error {
	doc := run.doc
	now := time.Now().UTC()

	full := Update{
		Data:      Set(doc.Data),
		UpdatedAt: Set(now),
		UpdatedBy: SetOrClear(s.getSystemName()),
	}.merge(u)

	// Store writes outlive Close; only handlers see the cancellation.
	ctx := context.WithoutCancel(s.ctx)
	err := s.withTaskCollection(ctx, func(c Collection) error {
		return c.UpdateOne(ctx, doc.ID, full)
	})
	if err != nil {
		return err
	}

	if status, ok := full.Status.Value(); ok {
		doc.Status = status
	}
	doc.UpdatedAt = &now
	doc.UpdatedBy, _ = full.UpdatedBy.Value()

	s.getLogger().Debug("task updated",
		"task_id", doc.ID,
		"task_key", doc.Key,
		"status", doc.Status)

	return nil
}
