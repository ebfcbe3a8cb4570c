package logger

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
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{" Warn ", LevelWarn},
		{"error", LevelError},
		{"nonsense", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestLogLevel_UnmarshalText(t *testing.T) {
	var l LogLevel
	require.NoError(t, l.UnmarshalText([]byte("error")))
	assert.Equal(t, LevelError, l)
	assert.Equal(t, "ERROR", l.String())
}

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: LevelInfo, Output: &buf})

	log.Debug(context.Background(), "hidden")
	log.Info(context.Background(), "pipeline run finished", map[string]interface{}{"records": 42})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, "debug entry should be filtered at info level")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "pipeline run finished", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.EqualValues(t, 42, entry["records"])
	assert.Contains(t, entry, "timestamp")
}

func TestLogger_ErrorAndComponent(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: LevelDebug, Output: &buf}).WithComponent("fetcher")

	log.Error(context.Background(), errors.New("boom"), "fetch failed", map[string]interface{}{"symbol": "BTCUSDT"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "fetcher", entry["component"])
	assert.Equal(t, "BTCUSDT", entry["symbol"])
	assert.NoError(t, log.Close())
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: LevelWarn, Format: "text", Output: &buf})

	log.Info(context.Background(), "skipped")
	log.Warn(context.Background(), "stale snapshot served")

	out := buf.String()
	assert.NotContains(t, out, "skipped")
	assert.Contains(t, out, "stale snapshot served")
}
