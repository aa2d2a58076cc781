package logx

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "powerwatch/internal/transport"
)

type captureSender struct {
	mu   sync.Mutex
	sent []string
	to   []kit.ChatTarget
}

func (c *captureSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	c.to = append(c.to, to)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (c *captureSender) texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func newTestSink(t *testing.T, cfg AlertConfig) (*alertSink, *captureSender) {
	t.Helper()
	cs := &captureSender{}
	a := newAlertSink(cs)
	a.apply(cfg)
	t.Cleanup(a.close)
	return a, cs
}

func jsonLine(level, msg string) []byte {
	return []byte(`{"level":"` + level + `","message":"` + msg + `","time":"2026-10-15T08:00:00Z"}`)
}

func TestAlertSinkHonoursMinLevel(t *testing.T) {
	t.Parallel()

	a, cs := newTestSink(t, AlertConfig{Enabled: true, ChatID: 42, ThreadID: 7, MinLevel: "error", RatePerSec: 10})

	_, _ = a.WriteLevel(zerolog.WarnLevel, jsonLine("warn", "disk slow"))
	_, _ = a.WriteLevel(zerolog.ErrorLevel, jsonLine("error", "disk gone"))

	require.Eventually(t, func() bool { return len(cs.texts()) >= 1 }, 2*time.Second, 10*time.Millisecond)
	texts := cs.texts()
	assert.Equal(t, "<b>[ERROR]</b> disk gone", texts[0])
	cs.mu.Lock()
	assert.Equal(t, kit.ChatTarget{ChatID: 42, ThreadID: 7}, cs.to[0])
	cs.mu.Unlock()
	assert.Never(t, func() bool { return len(cs.texts()) > 1 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestAlertSinkRateLimits(t *testing.T) {
	t.Parallel()

	a, cs := newTestSink(t, AlertConfig{Enabled: true, ChatID: 42, RatePerSec: 1})

	for range 5 {
		_, _ = a.WriteLevel(zerolog.ErrorLevel, jsonLine("error", "boom"))
	}

	require.Eventually(t, func() bool { return len(cs.texts()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return len(cs.texts()) > 1 }, 200*time.Millisecond, 10*time.Millisecond)
}

func TestAlertSinkStopsWhenDisabled(t *testing.T) {
	t.Parallel()

	a, cs := newTestSink(t, AlertConfig{Enabled: true, ChatID: 42, RatePerSec: 10})
	a.apply(AlertConfig{Enabled: false, ChatID: 42, RatePerSec: 10})

	_, _ = a.WriteLevel(zerolog.ErrorLevel, jsonLine("error", "after disable"))
	assert.Never(t, func() bool { return len(cs.texts()) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestFormatAlertEscapes(t *testing.T) {
	t.Parallel()

	got := formatAlert([]byte(`{"level":"warn","message":"a<b & c","time":"x","host":"x>y","attempts":3}`))
	assert.Equal(t, "<b>[WARN]</b> a&lt;b &amp; c\nattempts=<code>3</code>\nhost=<code>x&gt;y</code>", got)

	assert.Equal(t, "not &lt;json&gt;", formatAlert([]byte("not <json>\n")))
}

func TestFormatAlertClipsWholeRunes(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("ї&", 400)
	got := formatAlert([]byte(`{"level":"error","message":"m","value":"` + long + `"}`))

	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "…</code>"))
	assert.Equal(t, 300, strings.Count(got, "&amp;"))
	assert.NotContains(t, strings.ReplaceAll(got, "&amp;", ""), "&")
}

func TestFormatAlertDropsFieldsOverBudget(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString(`{"level":"error","message":"m"`)
	for _, k := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		b.WriteString(`,"` + k + `":"` + strings.Repeat("x", 590) + `"`)
	}
	b.WriteString("}")

	got := formatAlert([]byte(b.String()))
	assert.LessOrEqual(t, utf8.RuneCountInString(got), alertMaxRunes+2)
	assert.True(t, strings.HasSuffix(got, "\n…"))
	assert.Contains(t, got, "\na=<code>")
	assert.NotContains(t, got, "\ng=<code>")
}
