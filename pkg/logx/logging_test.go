package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(l), &m))
		out = append(out, m)
	}
	return out
}

func TestWriterFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(String("comp", "monitor"))

	log.Debug("hidden")
	log.Info("tick finished",
		Int("locations", 3),
		Bool("skipped", false),
		Strings("ids", []string{"home", "dacha"}),
		Err(nil))
	log.Warn("probe failed", Err(errors.New("timeout")), String("comp", "probe"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)

	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "tick finished", lines[0]["message"])
	assert.Equal(t, "monitor", lines[0]["comp"])
	assert.EqualValues(t, 3, lines[0]["locations"])
	assert.Equal(t, false, lines[0]["skipped"])
	assert.Equal(t, []any{"home", "dacha"}, lines[0]["ids"])
	assert.NotContains(t, lines[0], "err")
	assert.Contains(t, lines[0]["caller"], "logging_test.go:")

	assert.Equal(t, "warn", lines[1]["level"])
	assert.Equal(t, "timeout", lines[1]["err"])
}

func TestZeroLoggerDiscards(t *testing.T) {
	var l Logger
	assert.True(t, l.IsZero())
	assert.False(t, Nop().IsZero())
	assert.False(t, l.With(String("a", "b")).IsZero())
	l.Error("dropped", Duration("d", time.Second))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelWarn, parseLevel(" warning ", LevelInfo))
	assert.Equal(t, LevelTrace, parseLevel("TRACE", LevelInfo))
	assert.Equal(t, LevelInfo, parseLevel("loud", LevelInfo))
}
