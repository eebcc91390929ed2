package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.DebugLevel, "json", "")

	l.Info("job completed",
		String("jid", "j1"),
		Int("attempt", 2),
		Bool("ok", true),
		Error(errors.New("boom")))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "job completed", lines[0]["message"])
	assert.Equal(t, "j1", lines[0]["jid"])
	assert.EqualValues(t, 2, lines[0]["attempt"])
	assert.Equal(t, true, lines[0]["ok"])
	assert.Equal(t, "boom", lines[0]["error"])
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.WarnLevel, "json", "")

	l.Debug("dropped")
	l.Info("dropped")
	l.Warn("kept")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "kept", lines[0]["message"])
}

func TestLoggerWithAndLog(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.DebugLevel, "json", "").With(String("worker", "w1"))

	l.Log("error", "report failed", map[string]interface{}{"jid": "j9"})
	l.Log("bogus", "fallback level", nil)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "error", lines[0]["level"])
	assert.Equal(t, "w1", lines[0]["worker"])
	assert.Equal(t, "j9", lines[0]["jid"])
	assert.Equal(t, "info", lines[1]["level"])
}

func TestNopNeverPanics(t *testing.T) {
	l := Nop()
	l.Info("x", String("a", "b"))
	l.Error("x", Error(nil))
	l.With(Int("n", 1)).Warn("y")
	l.Log("debug", "z", nil)
}

func TestNewInvalidLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stdout"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}
