package main

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/docqueue/internal/config"
	"github.com/phrazzld/docqueue/internal/platform/logger"
)

// loadAppConfig loads the configuration from path, or from the default
// locations when path is empty.
func loadAppConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// setupAppLogger installs the JSON logger at the configured level and logs
// the non-secret parts of cfg.
func setupAppLogger(cfg *config.Config) (*slog.Logger, error) {
	l, err := logger.Setup(logger.LoggerConfig{Level: cfg.Server.LogLevel})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	l.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"driver", cfg.Database.Driver,
		"collection", cfg.Queue.CollectionName,
		"retry_delay", cfg.Queue.RetryDelay().String())
	l.Debug("optional configuration",
		"database_url_present", cfg.Database.URL != "",
		"webhook_enabled", cfg.Webhook.URL != "",
		"system_name", cfg.Queue.SystemName)

	return l, nil
}
