package tgui

import (
	"context"
	"strings"

	kit "powerwatch/internal/transport"
)

// Message is a rendered body plus the options it must be sent with.
type Message struct {
	Text string
	Opt  *kit.SendOptions
}

// Send delivers the message through any Sender.
func (m Message) Send(ctx context.Context, s kit.Sender, to kit.ChatTarget) (kit.MessageRef, error) {
	if m.Opt == nil {
		m.Opt = &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
	}
	return s.SendText(ctx, to, m.Text, m.Opt)
}

// Builder assembles an HTML message line by line.
// Default: ParseMode=HTML, DisablePreview=true.
type Builder struct {
	silent bool
	lines  []string
}

func New() *Builder { return &Builder{} }

// Silent asks the platform to deliver without a notification sound.
func (b *Builder) Silent(v bool) *Builder {
	b.silent = v
	return b
}

// Title adds a bold title line. Emoji is optional.
func (b *Builder) Title(emoji, title string) *Builder {
	e := strings.TrimSpace(emoji)
	t := strings.TrimSpace(title)
	if t == "" {
		return b
	}
	if e != "" {
		b.lines = append(b.lines, Esc(e).String()+" "+B(t).String())
	} else {
		b.lines = append(b.lines, B(t).String())
	}
	return b
}

// Line adds an escaped line; a blank string adds an empty line.
func (b *Builder) Line(s string) *Builder {
	if strings.TrimSpace(s) == "" {
		b.lines = append(b.lines, "")
		return b
	}
	b.lines = append(b.lines, Esc(s).String())
	return b
}

// HLine adds a line of already-safe HTML. Empty values are skipped.
func (b *Builder) HLine(h H) *Builder {
	if strings.TrimSpace(h.String()) == "" {
		return b
	}
	b.lines = append(b.lines, h.String())
	return b
}

// Blank inserts an empty line.
func (b *Builder) Blank() *Builder { return b.Line("") }

// KV adds a "key: value" row with a bold key.
func (b *Builder) KV(key, value string) *Builder {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" {
		return b
	}
	b.lines = append(b.lines, "• "+B(key).String()+": "+Esc(value).String())
	return b
}

// Build produces a ready-to-send Message. Runs of blank lines collapse to
// one and the text never starts or ends with a blank line.
func (b *Builder) Build() Message {
	out := make([]string, 0, len(b.lines))
	for _, ln := range b.lines {
		if ln == "" && (len(out) == 0 || out[len(out)-1] == "") {
			continue
		}
		out = append(out, ln)
	}
	text := strings.Trim(strings.Join(out, "\n"), "\n")
	return Message{
		Text: text,
		Opt:  &kit.SendOptions{ParseMode: "HTML", DisablePreview: true, Silent: b.silent},
	}
}
