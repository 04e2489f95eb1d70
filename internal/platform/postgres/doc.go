// Package postgres implements the task collection on PostgreSQL using pgx.
// Each collection is a table created by the docqueue_ensure_task_collection
// function, which the embedded goose migrations install.
package postgres
