package testdb

import "os"

// Environment variables that enable integration tests.
const (
	EnvDatabaseURL = "DATABASE_URL"
	EnvRedisURL    = "REDIS_URL"
)

// DatabaseURL returns the PostgreSQL URL for integration tests, or "".
func DatabaseURL() string {
	return os.Getenv(EnvDatabaseURL)
}

// RedisURL returns the Redis URL for integration tests, or "".
func RedisURL() string {
	return os.Getenv(EnvRedisURL)
}

// ShouldSkipDatabaseTest reports whether PostgreSQL integration tests should be skipped.
func ShouldSkipDatabaseTest() bool {
	return DatabaseURL() == ""
}

// ShouldSkipRedisTest reports whether Redis integration tests should be skipped.
func ShouldSkipRedisTest() bool {
	return RedisURL() == ""
}
