package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/phrazzld/docqueue/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"trace", logger.LevelTrace, false},
		{"DEBUG", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.input, func(t *testing.T) {
			got, err := logger.ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetup(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	var buf bytes.Buffer
	l, err := logger.Setup(logger.LoggerConfig{Level: "warn", Output: &buf})
	require.NoError(t, err)
	require.NotNil(t, l)

	l.Info("dropped")
	l.Warn("kept", "task_key", "send-email")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "send-email", entry["task_key"])
	assert.Same(t, l, slog.Default())
}

func TestSetup_TraceLevelName(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	var buf bytes.Buffer
	l, err := logger.Setup(logger.LoggerConfig{Level: "trace", Output: &buf})
	require.NoError(t, err)

	logger.FromSlog(l).Trace("very detailed")

	assert.Contains(t, buf.String(), `"level":"TRACE"`)
}

func TestFuncs_NilMembersAreNoOps(t *testing.T) {
	var got []string
	l := logger.Funcs{
		WarnFunc: func(msg string, args ...any) { got = append(got, msg) },
	}

	assert.NotPanics(t, func() {
		l.Trace("a")
		l.Debug("b")
		l.Info("c")
		l.Warn("d")
		l.Error("e")
	})
	assert.Equal(t, []string{"d"}, got)

	assert.NotPanics(t, func() { logger.Discard.Error("nothing") })
}

func TestFromSlog(t *testing.T) {
	buf, sl := logger.NewTestLogger(t)
	l := logger.FromSlog(sl)

	l.Trace("t")
	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e", "error", "boom")

	entries, err := buf.GetLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 5)

	levels := make([]string, 0, len(entries))
	for _, e := range entries {
		levels = append(levels, e["level"].(string))
	}
	assert.Equal(t, []string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR"}, levels)
	logger.AssertLogContains(t, buf, `"error":"boom"`)
}

func TestFromContext(t *testing.T) {
	_, sl := logger.NewTestLogger(t)

	ctx := logger.WithLogger(context.Background(), sl)
	assert.Same(t, sl, logger.FromContext(ctx))
	assert.Same(t, slog.Default(), logger.FromContext(context.Background()))
}
