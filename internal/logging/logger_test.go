package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelWarn, Output: &buf})
	ctx := context.Background()

	logger.Debug(ctx, "debug message")
	logger.Info(ctx, "info message")
	assert.Empty(t, buf.String())

	logger.Warn(ctx, errors.New("handle closed"), "watch failed", "path", "/src")
	out := buf.String()
	assert.Contains(t, out, "watch failed")
	assert.Contains(t, out, "error=\"handle closed\"")
	assert.Contains(t, out, "path=/src")
}

func TestLoggerJSONFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&LoggerConfig{Level: LevelDebug, Format: "json", Output: &buf})
	logger := base.WithComponent("watcher").With("strategy", "fsnotify")

	logger.Info(context.Background(), "registered", "path", "/src")

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &record))
	assert.Equal(t, "registered", record["msg"])
	assert.Equal(t, "watcher", record["component"])
	assert.Equal(t, "fsnotify", record["strategy"])
	assert.Equal(t, "/src", record["path"])
}

func TestNopDiscards(t *testing.T) {
	logger := Nop()
	assert.NotPanics(t, func() {
		logger.Error(context.Background(), errors.New("x"), "ignored")
		logger.With("a", 1).WithComponent("b").Info(context.Background(), "ignored")
	})
}

func TestPerfLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelDebug, Output: &buf})

	op := StartOperation(logger, "resolve")
	d := op.End(context.Background())

	assert.GreaterOrEqual(t, int64(d), int64(0))
	assert.Contains(t, buf.String(), "operation=resolve")
}
