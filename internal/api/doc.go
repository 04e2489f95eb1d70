// Package api exposes the task queue over HTTP. It decodes and validates
// requests, calls the queue, and maps its errors to status codes without
// leaking internal details.
package api
