// Package webhook provides an execution handler that delivers each task
// attempt to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phrazzld/docqueue/internal/queue"
)

// DefaultTimeout applies when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// maxBodyExcerpt limits how much of an error response is kept in the task errors.
const maxBodyExcerpt = 1024

// Config configures a webhook handler.
type Config struct {
	URL     string
	Timeout time.Duration

	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// Payload is the JSON body posted for every attempt.
type Payload struct {
	TaskUUID string     `json:"taskUuid"`
	Key      string     `json:"key"`
	Data     queue.Data `json:"data"`
}

// StatusError is returned when the endpoint answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook responded with status %d", e.StatusCode)
}

// Name is recorded as the error name of the failed attempt.
func (e *StatusError) Name() string { return "WebhookStatusError" }

// Details includes the start of the response body.
func (e *StatusError) Details() string {
	if e.Body == "" {
		return e.Error()
	}
	return e.Error() + ": " + e.Body
}

// Handler posts task executions to a URL.
type Handler struct {
	url    string
	client *http.Client
}

// NewHandler validates cfg and creates a Handler.
func NewHandler(cfg Config) (*Handler, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("invalid webhook url: scheme must be http or https")
	}
	if u.Host == "" {
		return nil, errors.New("invalid webhook url: missing host")
	}

	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Handler{url: u.String(), client: client}, nil
}

// Execute is a queue.ExecutionHandler.
func (h *Handler) Execute(ctx context.Context, exec queue.Execution) error {
	body, err := json.Marshal(Payload{
		TaskUUID: exec.TaskUUID,
		Key:      exec.TaskKey,
		Data:     exec.Data,
	})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Task-Key", exec.TaskKey)
	req.Header.Set("X-Task-Uuid", exec.TaskUUID)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyExcerpt))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(excerpt)),
		}
	}
	return nil
}
