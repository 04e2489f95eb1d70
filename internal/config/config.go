package config

import "time"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue" validate:"required"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
}

// ServerConfig contains the HTTP server and logging settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=trace debug info warn error"`
}

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// DatabaseConfig selects and configures the task store.
type DatabaseConfig struct {
	Driver         string `mapstructure:"driver" validate:"required,oneof=postgres redis memory"`
	URL            string `mapstructure:"url" validate:"required_unless=Driver memory"`
	MaxConns       int32  `mapstructure:"max_conns" validate:"gt=0"`
	MigrateOnStart bool   `mapstructure:"migrate_on_start"`
}

// QueueConfig configures the queue storage.
type QueueConfig struct {
	CollectionName string `mapstructure:"collection_name" validate:"required"`
	RetryDelayMS   int64  `mapstructure:"retry_delay_ms" validate:"gte=0"`
	SystemName     string `mapstructure:"system_name"`
}

// RetryDelay returns RetryDelayMS as a duration.
func (q QueueConfig) RetryDelay() time.Duration {
	return time.Duration(q.RetryDelayMS) * time.Millisecond
}

// WebhookConfig configures the optional webhook execution handler.
// The handler is disabled when URL is empty.
type WebhookConfig struct {
	URL            string `mapstructure:"url" validate:"omitempty,url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"gt=0"`
}

// Timeout returns TimeoutSeconds as a duration.
func (w WebhookConfig) Timeout() time.Duration {
	return time.Duration(w.TimeoutSeconds) * time.Second
}
