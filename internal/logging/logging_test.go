package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsToJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(WithOutput(&buf))

	logger.Info("bucket refilled", "key", "user123")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "INFO", record["level"])
	assert.Equal(t, "bucket refilled", record["msg"])
	assert.Equal(t, "user123", record["key"])
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(WithOutput(&buf), WithFormat(FormatText))

	logger.Warn("store unreachable")

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "store unreachable")
}

func TestNewLevelFiltersRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := New(WithOutput(&buf), WithLevel(slog.LevelWarn))

	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestNewAttrsAppearOnEveryRecord(t *testing.T) {
	var buf bytes.Buffer
	logger := New(WithOutput(&buf), WithAttr(slog.String("service", "throttlerd")))

	logger.Info("first")
	logger.Info("second")

	var count int
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var record map[string]any
		require.NoError(t, dec.Decode(&record))
		assert.Equal(t, "throttlerd", record["service"])
		count++
	}
	assert.Equal(t, 2, count)
}

func TestNewUnknownFormatFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(WithOutput(&buf), WithFormat(Format("yaml")))

	logger.Info("hello")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "hello", record["msg"])
}
