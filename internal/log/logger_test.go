package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithFields_Merges(t *testing.T) {
	ctx := WithFields(context.Background(), LogFields{"guild_id": "1", "event": "message"})
	ctx = WithFields(ctx, LogFields{"event": "reaction"})

	fields := GetLogFields(ctx)
	assert.Equal(t, "1", fields["guild_id"])
	assert.Equal(t, "reaction", fields["event"])
}

func TestGetLogFields_Empty(t *testing.T) {
	assert.Empty(t, GetLogFields(context.Background()))
	assert.Empty(t, TraceID(context.Background()))
}

func TestInfo_IncludesTraceAndFields(t *testing.T) {
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(New(&buf, "debug", true))
	t.Cleanup(func() { slog.SetDefault(previous) })

	ctx := WithTraceID(context.Background(), "trace-123")
	ctx = WithFields(ctx, LogFields{"guild_id": "42"})
	Info(ctx, "hello", "step", "2")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "trace-123", line["trace_id"])
	assert.Equal(t, "42", line["guild_id"])
	assert.Equal(t, "2", line["step"])
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", false)

	logger.Info("dropped")
	assert.Empty(t, buf.String())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}
