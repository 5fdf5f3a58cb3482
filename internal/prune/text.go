// Package prune shortens text to platform limits without splitting runes.
package prune

import (
	"strings"
	"unicode/utf8"
)

const DefaultMarker = "..."

// TruncateRunes returns s cut to at most maxRunes runes, the marker included.
// Invalid UTF-8 is dropped first. maxRunes <= 0 disables truncation.
func TruncateRunes(s string, maxRunes int) string {
	s = Sanitize(s)
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	marker := DefaultMarker
	keep := maxRunes - utf8.RuneCountInString(marker)
	if keep <= 0 {
		return string([]rune(s)[:maxRunes])
	}
	cut := 0
	for i := 0; i < keep; i++ {
		_, size := utf8.DecodeRuneInString(s[cut:])
		cut += size
	}
	return s[:cut] + marker
}

// Sanitize strips invalid byte sequences.
func Sanitize(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}
