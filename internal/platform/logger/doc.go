// Package logger provides structured logging functionality for the application.
//
// It utilizes Go's standard library log/slog package to implement structured JSON logging
// with configurable log levels, and defines the pluggable Logger capability set that the
// queue storage writes its lifecycle messages to.
package logger
