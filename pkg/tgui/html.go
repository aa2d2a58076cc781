package tgui

import (
	"fmt"
	"html"
	"strings"
)

// H is text already safe for Telegram's HTML parse mode.
type H string

func (h H) String() string { return string(h) }

// Esc escapes plain text.
func Esc(s string) H { return H(html.EscapeString(s)) }

func B(s string) H { return H("<b>" + html.EscapeString(s) + "</b>") }
func I(s string) H { return H("<i>" + html.EscapeString(s) + "</i>") }

// Cat concatenates parts into one fragment. H parts are kept as they are,
// everything else is formatted with fmt and escaped.
func Cat(parts ...any) H {
	var sb strings.Builder
	for _, p := range parts {
		switch v := p.(type) {
		case H:
			sb.WriteString(string(v))
		case string:
			sb.WriteString(html.EscapeString(v))
		default:
			sb.WriteString(html.EscapeString(fmt.Sprint(v)))
		}
	}
	return H(sb.String())
}
