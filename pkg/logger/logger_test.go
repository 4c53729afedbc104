package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for raw, want := range tests {
		assert.Equal(t, want, parseLevel(raw), raw)
	}
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn", "json")

	log.Info("dropped")
	log.Warn("token refreshed", slog.String("key_id", "KEY1234567"))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "token refreshed", line["msg"])
	assert.Equal(t, "KEY1234567", line["key_id"])
	assert.NotContains(t, buf.String(), "dropped")
}

func TestNewWithWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "debug", "text").Debug("queue drained", slog.Int("remaining", 0))
	assert.Contains(t, buf.String(), "msg=\"queue drained\"")
	assert.Contains(t, buf.String(), "remaining=0")
}
