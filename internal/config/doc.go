// Package config loads docqueue settings from defaults, an optional
// config.yaml and DOCQUEUE_* environment variables, and validates them.
package config
