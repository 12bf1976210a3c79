package tgui

import "unicode/utf8"

// TruncRunes shortens s to at most n runes, appending an ellipsis when
// anything was cut. Useful for button labels, which Telegram clips anyway.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	seen := 0
	for pos := range s {
		if seen == n {
			return s[:pos] + "…"
		}
		seen++
	}
	return s
}
