package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLogger_WritesStructuredEntry(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("opns", LevelDebug, &buf)

	l.Info("name acquired", map[string]interface{}{
		"handle": "alice",
		"error":  errors.New("boom"),
	})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "opns", entry["service"])
	assert.Equal(t, "name acquired", entry["message"])
	assert.Equal(t, "alice", entry["handle"])
	assert.Equal(t, "boom", entry["error"])
	assert.NotEmpty(t, entry["timestamp"])
}

func TestJSONLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("opns", LevelWarn, &buf)

	l.Debug("hidden", nil)
	l.Info("hidden", nil)
	l.Warn("shown", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"shown"`)
}

func TestJSONLogger_FatalExits(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("opns", LevelInfo, &buf).(*jsonLogger)
	code := -1
	l.exit = func(c int) { code = c }

	l.Fatal("bye", nil)

	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), `"fatal"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}
