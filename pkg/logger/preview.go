package logger

import "unicode/utf8"

// Preview bounds text for a log attribute. The cut falls on a rune boundary
// so the result stays valid UTF-8 when the input is.
func Preview(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}

	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
