// Package store defines the errors shared by every task document backing store.
// Concrete stores (postgres, redis, memory) wrap their driver errors in these
// sentinels so callers can test for them with errors.Is regardless of backend.
package store
