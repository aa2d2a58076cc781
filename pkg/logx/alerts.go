package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "powerwatch/internal/transport"
	"powerwatch/pkg/tgui"
)

// AlertConfig routes warn+ log lines to an operator chat.
type AlertConfig struct {
	Enabled    bool
	ChatID     int64
	ThreadID   int
	MinLevel   string
	RatePerSec int
}

// alertSink is a zerolog.LevelWriter that forwards lines to a chat through a
// bounded queue. It never blocks the caller; overflow and rate-limited lines
// are dropped.
type alertSink struct {
	sender kit.Sender

	mu       sync.Mutex
	to       kit.ChatTarget
	minLevel zerolog.Level
	limiter  *rate.Limiter

	queue  chan alertItem
	once   sync.Once
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type alertItem struct {
	to   kit.ChatTarget
	text string
}

func newAlertSink(sender kit.Sender) *alertSink {
	return &alertSink{
		sender:   sender,
		minLevel: zerolog.WarnLevel,
		limiter:  rate.NewLimiter(1, 1),
		queue:    make(chan alertItem, 128),
	}
}

func (a *alertSink) apply(cfg AlertConfig) {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	a.mu.Lock()
	a.to = kit.ChatTarget{}
	if cfg.Enabled {
		a.to = kit.ChatTarget{ChatID: cfg.ChatID, ThreadID: cfg.ThreadID}
	}
	a.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	a.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	a.mu.Unlock()

	if cfg.Enabled {
		a.once.Do(a.start)
	}
}

func (a *alertSink) start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case it := <-a.queue:
				sctx, done := context.WithTimeout(ctx, 10*time.Second)
				_, _ = a.sender.SendText(sctx, it.to, it.text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
				done()
			}
		}
	}()
}

func (a *alertSink) close() {
	if a.cancel != nil {
		a.cancel()
		a.wg.Wait()
	}
}

func (a *alertSink) Write(p []byte) (int, error) { return a.WriteLevel(zerolog.InfoLevel, p) }

func (a *alertSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	a.mu.Lock()
	to, minLevel, lim := a.to, a.minLevel, a.limiter
	a.mu.Unlock()

	if to.ChatID == 0 || level < minLevel || !lim.Allow() {
		return len(p), nil
	}
	text := formatAlert(p)
	if text == "" {
		return len(p), nil
	}
	select {
	case a.queue <- alertItem{to: to, text: text}:
	default:
	}
	return len(p), nil
}

const (
	alertMaxRunes = 3500
	alertMsgRunes = 1000
	alertValRunes = 600
)

// formatAlert renders one JSON log line as a short HTML message:
// level and message in bold, then sorted key=value lines. Text is clipped
// by runes before escaping so entities and tags stay intact; fields that do
// not fit are dropped.
func formatAlert(p []byte) string {
	raw := strings.TrimSpace(string(p))
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return esc(tgui.Clip(raw, alertMaxRunes))
	}
	lvl, _ := m["level"].(string)
	msg, _ := m["message"].(string)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", "message":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "<b>[%s]</b> %s", esc(strings.ToUpper(lvl)), esc(tgui.Clip(msg, alertMsgRunes)))
	used := utf8.RuneCountInString(b.String())
	for _, k := range keys {
		line := fmt.Sprintf("\n%s=<code>%s</code>", esc(k), esc(tgui.Clip(fmt.Sprint(m[k]), alertValRunes)))
		n := utf8.RuneCountInString(line)
		if used+n > alertMaxRunes {
			b.WriteString("\n…")
			break
		}
		b.WriteString(line)
		used += n
	}
	return b.String()
}

func esc(s string) string { return tgui.Esc(s).String() }
