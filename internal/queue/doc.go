// Package queue persists asynchronous tasks as documents and drives them
// through their lifecycle.
//
// A Storage creates task documents (EnqueueTask), resubmits interrupted ones
// after a restart (EnqueueRemainingTasks) and marks all unfinished ones as
// stopped (StopAllEnqueuedTasks). Every submitted task is run through the
// registered execution handlers, in order, on the injected Scheduler. A task
// whose handlers fail is marked failed, its error is appended to the document
// and it is retried after a constant delay, without limit.
//
// The backing store is reached through a Database accessor on every
// operation. Implementations live in internal/platform (postgres, redis,
// memory).
package queue
