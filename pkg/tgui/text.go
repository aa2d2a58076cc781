package tgui

import "unicode/utf8"

// Clip keeps the first n runes of s and marks a cut with "…".
func Clip(s string, n int) string {
	switch {
	case n <= 0:
		return ""
	case utf8.RuneCountInString(s) <= n:
		return s
	}
	return string([]rune(s)[:n]) + "…"
}
